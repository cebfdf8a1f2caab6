package redis

import "github.com/redis/go-redis/v9"

// Every state transition runs as one Lua script so that Redis applies it
// atomically. Scripts receive the key prefix as ARGV[1] and derive key
// names the same way keys.go does. KEYS[1] is only a routing hint for
// cluster clients. Timestamps are Unix milliseconds computed by the caller.

const luaCommon = `
local P = ARGV[1]
local function jkey(id) return P .. "job:" .. id end
local function qkey(kind, q) return P .. kind .. ":" .. q end

local function notify(q)
  local k = qkey("notify", q)
  redis.call("RPUSH", k, "1")
  redis.call("LTRIM", k, -1024, -1)
end

local function make_pending(id, key, q)
  redis.call("ZADD", qkey("queue", q), redis.call("HGET", key, "priority"), redis.call("HGET", key, "member"))
  notify(q)
end

local function bury(id, key, q, state, now)
  redis.call("HSET", key, "state", state, "dead_at", now, "updated_at", now)
  redis.call("ZADD", qkey("dead", q), now, id)
end

local function promote(q, now)
  local ids = redis.call("ZRANGEBYSCORE", qkey("delayed", q), "-inf", now, "LIMIT", 0, 256)
  for _, id in ipairs(ids) do
    redis.call("ZREM", qkey("delayed", q), id)
    local key = jkey(id)
    if redis.call("EXISTS", key) == 1 then
      redis.call("HDEL", key, "not_before")
      make_pending(id, key, q)
    end
  end
end

local function reclaim(q, now, limit)
  local requeued, dead = {}, {}
  local ids = redis.call("ZRANGEBYSCORE", qkey("leased", q), "-inf", now, "LIMIT", 0, limit)
  for _, id in ipairs(ids) do
    redis.call("ZREM", qkey("leased", q), id)
    local key = jkey(id)
    if redis.call("HGET", key, "state") == "leased" then
      local attempts = tonumber(redis.call("HGET", key, "attempts") or "0")
      local max = tonumber(redis.call("HGET", key, "max_attempts") or "0")
      redis.call("HDEL", key, "lease_expiry", "lease_token")
      redis.call("HSET", key, "last_error", "lease expired", "updated_at", now)
      if max > 0 and attempts >= max then
        bury(id, key, q, "dead", now)
        dead[#dead + 1] = id
      else
        redis.call("HSET", key, "state", "pending")
        make_pending(id, key, q)
        requeued[#requeued + 1] = id
      end
    end
  end
  return requeued, dead
end

local function check_lease(key, token, now)
  local state = redis.call("HGET", key, "state")
  if not state then return {"missing", ""} end
  if state ~= "leased" then return {"state", state} end
  local exp = tonumber(redis.call("HGET", key, "lease_expiry") or "0")
  if exp <= tonumber(now) then return {"expired", state} end
  if token ~= "" and redis.call("HGET", key, "lease_token") ~= token then
    return {"token", state}
  end
  return nil
end
`

// enqueueScript admits a batch all-or-nothing.
// ARGV: prefix, now, maxPending, n, then n × (id, queue, priority, command, max_attempts).
// Returns {"ok"}, {"dup", id} or {"full", queue}. An id stored already or
// repeated within the batch is a "dup".
var enqueueScript = redis.NewScript(luaCommon + `
local now = ARGV[2]
local maxPending = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
local base = 5

local seen = {}
for i = 0, n - 1 do
  local id = ARGV[base + i * 5]
  if seen[id] or redis.call("EXISTS", jkey(id)) == 1 then return {"dup", id} end
  seen[id] = true
end

if maxPending > 0 then
  local adds = {}
  for i = 0, n - 1 do
    local q = ARGV[base + i * 5 + 1]
    adds[q] = (adds[q] or 0) + 1
  end
  for q, c in pairs(adds) do
    if redis.call("ZCARD", qkey("queue", q)) + c > maxPending then return {"full", q} end
  end
end

for i = 0, n - 1 do
  local o = base + i * 5
  local id, q, prio, cmd, max = ARGV[o], ARGV[o + 1], ARGV[o + 2], ARGV[o + 3], ARGV[o + 4]
  local seq = redis.call("INCR", P .. "seq")
  local member = string.format("%016d", seq) .. ":" .. id
  redis.call("HSET", jkey(id),
    "id", id, "queue", q, "priority", prio, "command", cmd,
    "state", "pending", "attempts", "0", "max_attempts", max,
    "member", member, "enqueued_at", now, "updated_at", now)
  redis.call("ZADD", qkey("queue", q), prio, member)
  redis.call("SADD", P .. "queues", q)
  notify(q)
end
return {"ok"}
`)

// leaseScript claims the head of a queue.
// ARGV: prefix, queue, now, expiry, token, reclaimLimit.
// Returns {status, fields, requeued, dead} where status is "leased" or "empty".
var leaseScript = redis.NewScript(luaCommon + `
local q, now, exp, token = ARGV[2], ARGV[3], ARGV[4], ARGV[5]
local limit = tonumber(ARGV[6])

promote(q, now)
local requeued, dead = {}, {}
if limit > 0 then requeued, dead = reclaim(q, now, limit) end

while true do
  local popped = redis.call("ZPOPMIN", qkey("queue", q))
  if #popped == 0 then return {"empty", {}, requeued, dead} end
  local id = string.sub(popped[1], 18)
  local key = jkey(id)
  if redis.call("HGET", key, "state") == "pending" then
    redis.call("HSET", key, "state", "leased", "lease_expiry", exp, "lease_token", token, "updated_at", now)
    redis.call("HINCRBY", key, "attempts", 1)
    redis.call("ZADD", qkey("leased", q), exp, id)
    return {"leased", redis.call("HGETALL", key), requeued, dead}
  end
end
`)

// ackScript completes a live lease.
// ARGV: prefix, id, token, now, retainMs.
// Returns {"ok", "done", queue} or a lease failure.
var ackScript = redis.NewScript(luaCommon + `
local id, token, now = ARGV[2], ARGV[3], ARGV[4]
local retain = tonumber(ARGV[5])
local key = jkey(id)
local bad = check_lease(key, token, now)
if bad then return bad end

local q = redis.call("HGET", key, "queue")
redis.call("ZREM", qkey("leased", q), id)
if retain > 0 then
  redis.call("HDEL", key, "lease_expiry", "lease_token")
  redis.call("HSET", key, "state", "done", "completed_at", now, "updated_at", now)
  redis.call("PEXPIRE", key, retain)
else
  redis.call("DEL", key)
end
return {"ok", "done", q}
`)

// nackScript releases a live lease.
// ARGV: prefix, id, token, now, requeue ("1"/"0"), readyAt (0 = immediate), error.
// Returns {"ok", newState, queue} or a lease failure.
var nackScript = redis.NewScript(luaCommon + `
local id, token, now, requeue, readyAt, err = ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6], ARGV[7]
local key = jkey(id)
local bad = check_lease(key, token, now)
if bad then return bad end

local q = redis.call("HGET", key, "queue")
redis.call("ZREM", qkey("leased", q), id)
redis.call("HDEL", key, "lease_expiry", "lease_token")
redis.call("HSET", key, "last_error", err, "updated_at", now)

if requeue ~= "1" then
  bury(id, key, q, "failed", now)
  return {"ok", "failed", q}
end

local attempts = tonumber(redis.call("HGET", key, "attempts") or "0")
local max = tonumber(redis.call("HGET", key, "max_attempts") or "0")
if max > 0 and attempts >= max then
  bury(id, key, q, "dead", now)
  return {"ok", "dead", q}
end

redis.call("HSET", key, "state", "pending")
if tonumber(readyAt) > tonumber(now) then
  redis.call("HSET", key, "not_before", readyAt)
  redis.call("ZADD", qkey("delayed", q), readyAt, id)
else
  make_pending(id, key, q)
end
return {"ok", "pending", q}
`)

// extendScript renews a live lease.
// ARGV: prefix, id, token, now, newExpiry, progress (-1 = unchanged).
var extendScript = redis.NewScript(luaCommon + `
local id, token, now, exp, progress = ARGV[2], ARGV[3], ARGV[4], ARGV[5], ARGV[6]
local key = jkey(id)
local bad = check_lease(key, token, now)
if bad then return bad end

local q = redis.call("HGET", key, "queue")
redis.call("HSET", key, "lease_expiry", exp, "updated_at", now)
if tonumber(progress) >= 0 then
  redis.call("HSET", key, "progress", progress)
end
redis.call("ZADD", qkey("leased", q), exp, id)
return {"ok", exp}
`)

// reclaimScript requeues expired leases.
// ARGV: prefix, queue, now, limit. Returns {requeued, dead}.
var reclaimScript = redis.NewScript(luaCommon + `
local requeued, dead = reclaim(ARGV[2], ARGV[3], tonumber(ARGV[4]))
return {requeued, dead}
`)

// replayScript moves a failed or dead job back to pending with a fresh
// attempt budget. ARGV: prefix, id, now.
var replayScript = redis.NewScript(luaCommon + `
local id, now = ARGV[2], ARGV[3]
local key = jkey(id)
local state = redis.call("HGET", key, "state")
if not state then return {"missing", ""} end
if state ~= "dead" and state ~= "failed" then return {"state", state} end

local q = redis.call("HGET", key, "queue")
redis.call("ZREM", qkey("dead", q), id)
redis.call("HDEL", key, "dead_at")
redis.call("HSET", key, "state", "pending", "attempts", "0", "updated_at", now)
make_pending(id, key, q)
return {"ok", "pending"}
`)

// purgeScript deletes dead-lettered jobs that died before a cutoff.
// ARGV: prefix, queue, before, limit. Returns the number removed.
var purgeScript = redis.NewScript(luaCommon + `
local q, before, limit = ARGV[2], ARGV[3], tonumber(ARGV[4])
local ids = redis.call("ZRANGEBYSCORE", qkey("dead", q), "-inf", before, "LIMIT", 0, limit)
for _, id in ipairs(ids) do
  redis.call("ZREM", qkey("dead", q), id)
  redis.call("DEL", jkey(id))
end
return #ids
`)
