package sqlinline

// QCreateSchema creates the tables used by the service. It is idempotent.
const QCreateSchema = `--sql 1f8af3c0-5b54-45e5-a8a9-752b39f250d3
create table if not exists song_jobs (
    id text primary key,
    requester_id text not null default '',
    prompt_text text not null,
    style_tag text not null default '',
    title text not null default '',
    lyrics text not null default '',
    wants_instrumental boolean not null default false,
    wants_generated_lyrics boolean not null default false,
    voice_gender text not null default 'auto',
    target_duration_seconds integer not null default 0,
    locale text not null default '',
    state text not null check (state in ('pending', 'processing', 'completed', 'failed')),
    provider_task_id text not null default '',
    result_url text not null default '',
    durable_storage_ref text not null default '',
    result_lyrics text not null default '',
    result_title text not null default '',
    result_description text not null default '',
    result_duration_seconds double precision not null default 0,
    result_source text not null default '',
    error_message text not null default '',
    created_at timestamptz not null default now(),
    updated_at timestamptz not null default now()
);
create index if not exists song_jobs_requester_state_idx on song_jobs (requester_id, state);
create index if not exists song_jobs_pending_created_idx on song_jobs (created_at) where state = 'pending';
create table if not exists provider_keys (
    provider text primary key,
    api_key text not null,
    set_by text not null default '',
    updated_at timestamptz not null default now()
);
`
