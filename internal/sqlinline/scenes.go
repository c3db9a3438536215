package sqlinline

const QInsertScene = `--sql f0d0eb81-8205-4c11-858f-bf6f8cc6b285
insert into scenes (id, session_id, user_id, ord, text, images, video_epoch, created_at, updated_at)
values ($1::uuid, $2::uuid, $3::uuid, $4::int, $5::text, '{}'::text[], 0, now(), now());
`

const sceneColumns = `
    s.id, s.session_id, s.user_id, s.ord, s.text,
    coalesce(s.image_prompt, '') as image_prompt,
    s.images, s.selected_image_index,
    coalesce(s.video_prompt, '') as video_prompt,
    coalesce(s.negative_prompt, '') as negative_prompt,
    s.video_epoch, s.created_at, s.updated_at`

const QSelectScene = `--sql 778bae99-b9cc-42e7-ae8e-6a9338ac615b
select` + sceneColumns + `
from scenes s
where s.id = $1::uuid
limit 1;
`

const QSelectSessionScenes = `--sql 376ebda3-d9fb-4e3a-af58-62c246c85102
select` + sceneColumns + `
from scenes s
where s.session_id = $1::uuid
order by s.ord asc;
`

// Rewriting an earlier stage clears every later artifact and advances the
// video epoch so poll results for abandoned jobs are discarded on arrival.

const QUpdateSceneText = `--sql c2ae4588-bf2b-4449-94a0-9fcf76f1e176
with upd as (
    update scenes
    set text = $2::text,
        image_prompt = null,
        images = '{}'::text[],
        selected_image_index = null,
        video_prompt = null,
        negative_prompt = null,
        video_epoch = video_epoch + 1,
        updated_at = now()
    where id = $1::uuid
    returning id
)
delete from video_jobs where scene_id in (select id from upd);
`

const QSetImagePrompt = `--sql 4d05d497-2f54-48f6-a9f1-ec73ea172a73
with upd as (
    update scenes
    set image_prompt = $2::text,
        images = '{}'::text[],
        selected_image_index = null,
        video_prompt = null,
        negative_prompt = null,
        video_epoch = video_epoch + 1,
        updated_at = now()
    where id = $1::uuid
    returning id
)
delete from video_jobs where scene_id in (select id from upd);
`

const QSetImages = `--sql 687c8668-a5cf-4086-977f-72b48f3d622d
with upd as (
    update scenes
    set images = $2::text[],
        selected_image_index = null,
        video_prompt = null,
        negative_prompt = null,
        video_epoch = video_epoch + 1,
        updated_at = now()
    where id = $1::uuid
    returning id
)
delete from video_jobs where scene_id in (select id from upd);
`

const QSetSelectedImage = `--sql 90a70caa-4249-483e-8c04-334a15c8ad23
with upd as (
    update scenes
    set selected_image_index = $2::int,
        video_prompt = null,
        negative_prompt = null,
        video_epoch = video_epoch + 1,
        updated_at = now()
    where id = $1::uuid
    returning id
)
delete from video_jobs where scene_id in (select id from upd);
`

const QSetVideoPrompts = `--sql a017d350-d287-498b-8bc0-d217fbe5bf33
with upd as (
    update scenes
    set video_prompt = $2::text,
        negative_prompt = $3::text,
        video_epoch = video_epoch + 1,
        updated_at = now()
    where id = $1::uuid
    returning id
)
delete from video_jobs where scene_id in (select id from upd);
`

const QDeleteScene = `--sql 1c01c758-cec5-4b91-8620-4f5ea66a9f70
delete from scenes where id = $1::uuid;
`
