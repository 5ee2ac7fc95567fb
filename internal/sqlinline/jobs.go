package sqlinline

const songJobColumns = `id, requester_id, prompt_text, style_tag, title, lyrics,
    wants_instrumental, wants_generated_lyrics, voice_gender, target_duration_seconds, locale,
    state, provider_task_id, result_url, durable_storage_ref, result_lyrics, result_title,
    result_description, result_duration_seconds, result_source, error_message, created_at, updated_at`

const QInsertSongJob = `--sql 2751dfb9-9966-47a3-b07c-b719f2cd34f8
insert into song_jobs (
    id, requester_id, prompt_text, style_tag, title, lyrics,
    wants_instrumental, wants_generated_lyrics, voice_gender, target_duration_seconds, locale,
    state, created_at, updated_at
) values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13);
`

const QSelectSongJob = `--sql cc5edef7-f1c9-443e-8e2e-770a17e8ca00
select ` + songJobColumns + `
from song_jobs
where id = $1
limit 1;
`

// QUpdateSongJobState applies the update only while the stored state still
// equals $2. Null arguments keep the stored column value. provider_task_id is
// written once.
const QUpdateSongJobState = `--sql 0e9873df-adad-4327-a082-5d93733da575
update song_jobs
set state = coalesce($3::text, state),
    provider_task_id = case when provider_task_id = '' then coalesce($4::text, provider_task_id) else provider_task_id end,
    result_url = coalesce($5::text, result_url),
    durable_storage_ref = coalesce($6::text, durable_storage_ref),
    result_lyrics = coalesce($7::text, result_lyrics),
    result_title = coalesce($8::text, result_title),
    result_description = coalesce($9::text, result_description),
    result_duration_seconds = coalesce($10::double precision, result_duration_seconds),
    result_source = coalesce($11::text, result_source),
    error_message = coalesce($12::text, error_message),
    updated_at = now()
where id = $1 and state = $2
returning ` + songJobColumns + `;
`

const QSelectPendingSongJobsByRequester = `--sql c47ea16d-02c4-4c19-81bb-be4e0f454c31
select ` + songJobColumns + `
from song_jobs
where requester_id = $1 and state = 'pending'
order by created_at asc;
`

const QSelectStalePendingSongJobs = `--sql eb36722b-8970-40ab-a846-a91370b8c751
select ` + songJobColumns + `
from song_jobs
where state = 'pending' and created_at < $1
order by created_at asc
limit 500;
`

const QDeleteSongJob = `--sql bd394589-6315-4f15-a494-5ceb6955ec0d
delete from song_jobs
where id = $1;
`

const QSongJobExists = `--sql e9084d53-10c0-417e-913a-aff1f0bc81cb
select exists(select 1 from song_jobs where id = $1);
`
