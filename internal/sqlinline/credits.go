package sqlinline

const QSelectBalance = `--sql faf23706-7611-464b-b725-6522478f13d2
select credits from users where id = $1::uuid limit 1;
`

// QDebitCredits is a single conditional decrement: the balance update, the
// floor guard, and the transaction append execute as one statement. Returning
// no row means the balance did not cover the amount and nothing was written.
const QDebitCredits = `--sql 45b3a9cf-4361-466c-86e7-d06211036f71
with input as (
    select $1::uuid as user_id, $2::int as amount, $3::text as reason
),
debited as (
    update users u
    set credits = u.credits - (select amount from input),
        updated_at = now()
    where u.id = (select user_id from input)
      and u.credits >= (select amount from input)
    returning u.id, u.credits
),
logged as (
    insert into credit_transactions (id, user_id, amount, kind, reason, created_at)
    select gen_random_uuid(), d.id, -(select amount from input), 'debit', (select reason from input), now()
    from debited d
    returning user_id
)
select d.credits
from debited d, logged l
where d.id = l.user_id;
`

const QCreditCredits = `--sql d69bcdae-fea8-4a0c-b035-7573544ebe10
with input as (
    select $1::uuid as user_id, $2::int as amount, $3::text as reason
),
credited as (
    update users u
    set credits = u.credits + (select amount from input),
        updated_at = now()
    where u.id = (select user_id from input)
    returning u.id, u.credits
),
logged as (
    insert into credit_transactions (id, user_id, amount, kind, reason, created_at)
    select gen_random_uuid(), c.id, (select amount from input), 'credit', (select reason from input), now()
    from credited c
    returning user_id
)
select c.credits
from credited c, logged l
where c.id = l.user_id;
`

const QListTransactions = `--sql 10abe621-256d-4366-9674-c6e7b878dab6
select id, user_id, amount, kind, reason, created_at
from credit_transactions
where user_id = $1::uuid
order by created_at desc
limit $2::int;
`
