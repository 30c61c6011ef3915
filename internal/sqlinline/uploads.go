package sqlinline

const QInsertPendingUpload = `--sql 656bf64b-aa6b-4b5b-95c2-1fe8ce800cc3
insert into generated_image_uploads (id, character_id, storage_path, sequence, prediction_id, created_at)
values ($1::uuid, $2::uuid, $3::text, $4::int, $5::text, now())
returning created_at;
`

const QDeletePendingUpload = `--sql a4d18576-0dbe-45d0-916e-e7bf21fd8aab
delete from generated_image_uploads
where id = $1::uuid;
`

const QListStaleUploads = `--sql e18f7221-c96a-42ed-89b5-cb035d66f95d
select u.id::text, u.character_id::text, u.storage_path, u.sequence, u.prediction_id, u.created_at,
  exists (select 1 from generated_images g where g.storage_path = u.storage_path) as committed
from generated_image_uploads u
where u.created_at < $1::timestamptz
order by u.created_at asc
limit $2::int;
`
