// Command redisjq operates a redisjq job queue from the shell: it admits
// batches, leases and settles jobs, inspects queues and the dead letter
// set, and runs a worker that prints leased jobs for an external executor.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
