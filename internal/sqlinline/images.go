package sqlinline

const QListImagesByCharacter = `--sql bb3cd4b7-b884-449a-b4f9-d1dddeecb8df
select id::text, character_id::text, image_url, storage_path, prompt, prediction_id, sequence, archived, created_at
from generated_images
where character_id = $1::uuid
  and ($2::boolean is null or archived = $2::boolean)
order by sequence desc;
`

const QSelectImageByID = `--sql 6f7fcad7-20ab-4ebe-b491-200f2144b69c
select id::text, character_id::text, image_url, storage_path, prompt, prediction_id, sequence, archived, created_at
from generated_images
where id = $1::uuid
limit 1;
`

const QSetImageArchived = `--sql 55851013-7750-41f6-95a7-4d5a638705b7
update generated_images
set archived = $2::boolean
where id = $1::uuid
returning id::text, character_id::text, image_url, storage_path, prompt, prediction_id, sequence, archived, created_at;
`

// QSelectLatestSequence reads the current maximum without any lock.
const QSelectLatestSequence = `--sql e1985405-ddd8-4005-9a77-ff6cecfd68b5
select sequence
from generated_images
where character_id = $1::uuid
order by sequence desc
limit 1;
`

// QNextImageSequence reserves the next sequence under the counter row lock.
// The first reservation for a character is seeded from existing images.
const QNextImageSequence = `--sql 88031381-cfdc-40f4-9813-a0d722e5a0e0
insert into generated_image_counters as c (character_id, last_sequence, updated_at)
values (
  $1::uuid,
  coalesce((select max(sequence) from generated_images where character_id = $1::uuid), 0) + 1,
  now()
)
on conflict (character_id) do update
set last_sequence = c.last_sequence + 1,
    updated_at = now()
returning last_sequence;
`

const QInsertGeneratedImage = `--sql 2cddac71-f82f-4e7c-84f1-7d83fa4d5074
insert into generated_images (
  character_id,
  image_url,
  storage_path,
  prompt,
  prediction_id,
  sequence,
  archived
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::int,
  false
) returning id::text, created_at;
`
