package cluster

import "time"

// Worker is a consumer that reported itself idle on a queue. Registrations
// older than the registry's idle expiry are considered gone.
type Worker struct {
	ID       string    `json:"id"`
	Queue    string    `json:"queue"`
	LastSeen time.Time `json:"last_seen"`
}
