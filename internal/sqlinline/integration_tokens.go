package sqlinline

const QSelectIntegrationToken = `--sql e816e4b7-2fd0-4bbc-befa-0901d369a658
select token
from integration_tokens
where provider = $1::text
limit 1;
`

const QUpsertIntegrationToken = `--sql 82eaf411-2463-4e59-93d6-fe63d82f09d6
with incoming as (
  select $1::text as provider, $2::text as token, coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into integration_tokens (id, provider, token, properties, created_at, updated_at)
select gen_random_uuid(), provider, token, properties, now(), now()
from incoming
on conflict (provider) do update
set token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
