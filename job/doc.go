// Package job defines the job entity, its state machine, admission payload
// validation, serialization codecs and the store contract.
//
// # Job Entity
//
// A [Job] carries an opaque Command string that is delivered to consumers
// and never interpreted. It moves through five states:
//
//	pending → leased → done
//	pending → leased → pending            (lease expired or nack with requeue)
//	pending → leased → dead               (attempts used up)
//	pending → leased → failed             (nack without requeue)
//	failed|dead → pending                 (dead-letter replay)
//
// Fields of note:
//   - Queue: partitions jobs into independent queues
//   - Priority: lower values are dispatched first, ties in admission order
//   - Attempts / MaxAttempts: dispatch count and budget (0 = unlimited)
//   - LeaseExpiry / LeaseToken: set only while leased
//
// # Admission Payload
//
// [ParseBatch] accepts {"jobs": [{"id", "queue_name", "priority", "command"}]}
// where priority is a numeric string or a number. Every descriptor is
// validated; any failure rejects the whole batch with a
// [BatchValidationError] listing [SchemaError] and [ValueError] values.
//
// # Store
//
// [Store] is the narrow set of atomic operations the engine needs from the
// shared key-value store. store/redis implements it with Lua scripts and
// store/memory with a single mutex.
package job
