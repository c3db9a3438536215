package sqlinline

// QCreateVideoJob bumps the scene's epoch and records the submission in one
// statement, replacing any previous job row for the scene. The returned epoch
// tags every poll made on behalf of this submission.
const QCreateVideoJob = `--sql 05d956ec-963f-411f-9a58-7e5e44b38d52
with bumped as (
    update scenes
    set video_epoch = video_epoch + 1,
        updated_at = now()
    where id = $1::uuid
    returning id, video_epoch
)
insert into video_jobs (scene_id, epoch, request_id, status, submitted_at, video_url, thumbnail_url, reason, updated_at)
select id, video_epoch, $2::text, 'pending', $3::timestamptz, null, null, null, now()
from bumped
on conflict (scene_id) do update set
    epoch = excluded.epoch,
    request_id = excluded.request_id,
    status = 'pending',
    submitted_at = excluded.submitted_at,
    video_url = null,
    thumbnail_url = null,
    reason = null,
    updated_at = now()
returning scene_id, epoch, request_id, status, submitted_at;
`

const videoJobColumns = `
    j.scene_id, j.epoch, j.request_id, j.status, j.submitted_at,
    coalesce(j.video_url, '') as video_url,
    coalesce(j.thumbnail_url, '') as thumbnail_url,
    coalesce(j.reason, '') as reason,
    j.updated_at`

const QSelectVideoJobByRequest = `--sql 39fc0e08-5d5e-42a7-872e-ec87f58d819e
select` + videoJobColumns + `
from video_jobs j
where j.request_id = $1::text
limit 1;
`

const QSelectVideoJobByScene = `--sql 72c8efc2-7e54-4531-add1-275b6e4898dd
select` + videoJobColumns + `
from video_jobs j
where j.scene_id = $1::uuid
limit 1;
`

// Terminal transitions apply only while the epoch matches and the job is
// still pending; a zero-row update means the result was stale and discarded.

const QCompleteVideoJob = `--sql a1acd83c-5564-410c-a008-efa25bf0f11e
update video_jobs
set status = 'completed',
    video_url = $3::text,
    thumbnail_url = nullif($4::text, ''),
    updated_at = now()
where scene_id = $1::uuid
  and epoch = $2::int
  and status = 'pending';
`

const QFailVideoJob = `--sql d6a8feb3-8883-420f-933a-917ab93fc525
update video_jobs
set status = 'failed',
    reason = $3::text,
    updated_at = now()
where scene_id = $1::uuid
  and epoch = $2::int
  and status = 'pending';
`

const QSelectPendingVideoJobs = `--sql 1704b156-93e6-4a3c-97e1-43a978f5838d
select` + videoJobColumns + `
from video_jobs j
where j.status = 'pending'
order by j.submitted_at asc;
`
