package sqlinline

const QUpsertUserByEmail = `--sql bc46aed6-1eb9-4d16-a84b-4a706b150d02
with incoming as (
    select $1::text as email, $2::text as locale
),
existing as (
    select id from users where email = (select email from incoming)
),
inserted as (
    insert into users (id, email, locale_pref, credits, created_at, updated_at)
    select gen_random_uuid(), email, locale, 0, now(), now()
    from incoming
    where not exists (select 1 from existing)
    returning id
)
select u.id, u.email, u.locale_pref, u.credits, u.created_at, u.updated_at,
       (u.id in (select id from inserted)) as created
from users u
where u.email = (select email from incoming);
`

const QSelectUserByID = `--sql 4f080d01-5950-43b7-befb-60708cb02f45
select id, email, locale_pref, credits, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`
