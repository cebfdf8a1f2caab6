package redis

// Redis key naming conventions. Every key starts with the store prefix,
// "redisjq:" unless configured otherwise. The Lua scripts build the same
// names from the prefix they receive as ARGV[1].

const defaultPrefix = "redisjq:"

type keys struct {
	prefix string
}

// job returns the Hash key of a job record: {prefix}job:{id}
func (k keys) job(id string) string { return k.prefix + "job:" + id }

// pending returns the Sorted Set of dispatchable jobs: {prefix}queue:{name}
// Score is the priority, member is "%016d:{id}" so equal priorities leave
// in admission order.
func (k keys) pending(queue string) string { return k.prefix + "queue:" + queue }

// leased returns the Sorted Set of leased job ids scored by lease expiry (ms).
func (k keys) leased(queue string) string { return k.prefix + "leased:" + queue }

// delayed returns the Sorted Set of requeued job ids scored by ready time (ms).
func (k keys) delayed(queue string) string { return k.prefix + "delayed:" + queue }

// dead returns the Sorted Set of dead-lettered job ids scored by death time (ms).
func (k keys) dead(queue string) string { return k.prefix + "dead:" + queue }

// notify returns the List that wakes blocked dispatchers.
func (k keys) notify(queue string) string { return k.prefix + "notify:" + queue }

// idle returns the Sorted Set of idle worker ids scored by last report (ms).
func (k keys) idle(queue string) string { return k.prefix + "idle:" + queue }

// queues is the Set of every queue name that received a job.
func (k keys) queues() string { return k.prefix + "queues" }

// seq is the admission sequence counter.
func (k keys) seq() string { return k.prefix + "seq" }
