package sqlinline

const QListReferencesByCharacter = `--sql 9278c446-ca82-4023-87e2-95569aaeddf1
select id::text, character_id::text, image_url, is_default, created_at
from reference_images
where character_id = $1::uuid
order by created_at asc;
`

const QListDefaultReferences = `--sql f4a522f5-0266-4527-9c73-1bc9d653e7b9
select id::text, character_id::text, image_url, is_default, created_at
from reference_images
where character_id = $1::uuid
  and is_default = true
order by created_at asc;
`

const QListReferencesByIDs = `--sql e1649c7b-6222-43fc-af10-a83f2e6098ea
select id::text, character_id::text, image_url, is_default, created_at
from reference_images
where character_id = $1::uuid
  and id::text = any($2::text[])
order by created_at asc;
`
