package sqlinline

const QSelectProviderKey = `--sql 3c2f7d1e-95a4-4b0e-8f61-2d7c4e9a0b58
select api_key
from provider_keys
where provider = $1::text;
`

// QUpsertProviderKey replaces the key of one provider and stamps who set it.
const QUpsertProviderKey = `--sql 0e6b9a44-1c3d-4f87-9a2e-6b15c8d7f3a0
insert into provider_keys (provider, api_key, set_by, updated_at)
values ($1::text, $2::text, $3::text, now())
on conflict (provider) do update set
    api_key = excluded.api_key,
    set_by = excluded.set_by,
    updated_at = now();
`

const QListProviderKeys = `--sql 9d41e2b7-6a0c-4c5f-b3e8-71f0a2d6c94e
select provider, api_key, set_by, updated_at
from provider_keys
order by provider;
`
