package engine

import (
	"context"

	"github.com/franksops/vmshift/api"
	"github.com/franksops/vmshift/transfer"
)

// Phase is one step of a worker's lifecycle after the job was accepted.
type Phase int

const (
	// PhaseTransfer moves the image over the bulk-transfer channel.
	PhaseTransfer Phase = iota
	// PhaseSettle tells the server the transfer is done.
	PhaseSettle
	// PhasePoll waits until the server reports the job complete.
	PhasePoll
	// PhaseFinalize runs kind-specific cleanup and yields the payload.
	PhaseFinalize
)

func (p Phase) String() string {
	switch p {
	case PhaseTransfer:
		return "transfer"
	case PhaseSettle:
		return "settle"
	case PhasePoll:
		return "poll"
	case PhaseFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// Verbs are the status words a worker shows while it runs.
type Verbs struct {
	Idle     string // no bytes moved yet
	Transfer string // bytes moving
	Settling string // all bytes moved, waiting on the server; empty to keep the transfer line
	Success  string // prefix of the success payload
}

// Job is one accepted server-side export or import. All methods except
// Label and RemoteID are called from the owning worker goroutine only.
type Job interface {
	// Label prefixes the worker's status line.
	Label() string
	RemoteID() api.ID

	Transfer(ctx context.Context, onBytes transfer.ProgressFunc) error
	Settle(ctx context.Context) error
	Status(ctx context.Context) (api.Status, error)
	Finalize(ctx context.Context) (payload string, err error)
	Destroy(ctx context.Context) error
}

// Operation is the kind-specific half of an orchestrator.
type Operation interface {
	Kind() api.Kind

	// Create synchronously creates the server job for descriptor. It returns
	// an error wrapping ErrNoSlotsAvailable when the server is at capacity.
	Create(ctx context.Context, descriptor string) (Job, error)

	// Phases lists the steps run after creation, in order.
	Phases() []Phase

	// Describe labels a descriptor that never became a job.
	Describe(descriptor string) string

	Verbs() Verbs
}
