package control

import (
	"sync"

	"github.com/qolsys/qolsys2mqtt/internal/log"
)

// Router serializes command dispatch per partition: commands for
// partition N are processed in the order they arrive at Router.Submit,
// while commands for distinct partitions proceed concurrently. This is
// the mechanism behind the ControlPlane's ordering guarantee — MQTT
// itself makes no such promise across topic deliveries.
type Router struct {
	plane *Plane
	sub   Submitter
	log   *log.Logger

	mu     sync.Mutex
	queues map[int]chan Command
}

// NewRouter builds a Router dispatching validated commands to sub via
// plane.
func NewRouter(plane *Plane, sub Submitter, logger *log.Logger) *Router {
	return &Router{plane: plane, sub: sub, log: logger, queues: map[int]chan Command{}}
}

// Submit enqueues cmd for its partition, starting that partition's
// worker goroutine on first use. While the partition's 32-deep queue is
// full, Submit blocks until the worker frees a slot, so no command is
// dropped and arrival order is kept.
func (r *Router) Submit(cmd Command) {
	r.mu.Lock()
	q, ok := r.queues[cmd.PartitionID]
	if !ok {
		q = make(chan Command, 32)
		r.queues[cmd.PartitionID] = q
		go r.worker(cmd.PartitionID, q)
	}
	r.mu.Unlock()

	q <- cmd
}

func (r *Router) worker(partitionID int, q chan Command) {
	for cmd := range q {
		if err := r.plane.Dispatch(cmd, r.sub); err != nil {
			r.log.Info("command rejected for partition %d: %v", partitionID, err)
		}
	}
}
