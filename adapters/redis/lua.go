package redisstore

import "github.com/redis/go-redis/v9"

// saveJobScript stores a job and keeps the status sets and the creation
// index consistent in one step.
//
// KEYS[1] = job key (JSON string)
// KEYS[2] = all-jobs zset (score = created_at unix nanos)
// ARGV[1] = job JSON
// ARGV[2] = status set key prefix
// ARGV[3] = creation score
// ARGV[4] = job id
var saveJobScript = redis.NewScript(`
local new = cjson.decode(ARGV[1])
local old = redis.call('GET', KEYS[1])
if old then
  local prev = cjson.decode(old)
  if prev['status'] ~= new['status'] then
    redis.call('SREM', ARGV[2] .. prev['status'], ARGV[4])
  end
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SADD', ARGV[2] .. new['status'], ARGV[4])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
return 1
`)

// deleteJobScript removes a job, its index entries and its idempotency key.
//
// KEYS[1] = job key
// KEYS[2] = all-jobs zset
// KEYS[3] = job -> idempotency key reverse mapping
// ARGV[1] = status set key prefix
// ARGV[2] = job id
// ARGV[3] = idempotency key prefix
var deleteJobScript = redis.NewScript(`
local old = redis.call('GET', KEYS[1])
if old then
  local prev = cjson.decode(old)
  redis.call('SREM', ARGV[1] .. prev['status'], ARGV[2])
end
local idem = redis.call('GET', KEYS[3])
if idem then
  redis.call('DEL', ARGV[3] .. idem)
end
redis.call('DEL', KEYS[1], KEYS[3])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

// nackTaskScript removes an inflight task and either requeues it or moves it
// to the dead letter list. Returns 0 when the task is not inflight.
//
// KEYS[1] = inflight hash (task id -> payload)
// KEYS[2] = inflight deadline zset
// KEYS[3] = ready list
// KEYS[4] = dead letter list
// ARGV[1] = task id
// ARGV[2] = "1" to requeue
// ARGV[3] = "1" when the dead letter list is enabled
var nackTaskScript = redis.NewScript(`
local payload = redis.call('HGET', KEYS[1], ARGV[1])
if not payload then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
if ARGV[2] == '1' then
  redis.call('LPUSH', KEYS[3], payload)
elseif ARGV[3] == '1' then
  redis.call('RPUSH', KEYS[4], payload)
end
return 1
`)

// reclaimScript moves inflight tasks past their visibility deadline back to
// the consuming end of the ready list. Returns the number moved.
//
// KEYS[1] = inflight deadline zset
// KEYS[2] = inflight hash
// KEYS[3] = ready list
// ARGV[1] = now (unix millis)
var reclaimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
  local payload = redis.call('HGET', KEYS[2], id)
  redis.call('ZREM', KEYS[1], id)
  redis.call('HDEL', KEYS[2], id)
  if payload then
    redis.call('RPUSH', KEYS[3], payload)
  end
end
return #ids
`)
