package engine

import (
	"sync"
	"time"

	"github.com/franksops/vmshift/store"
	"github.com/google/uuid"
)

// CheckpointConfig defines the criteria for when to save a job's progress
type CheckpointConfig struct {
	// BytesInterval triggers a save after this many bytes have been transferred
	BytesInterval int64
	// TimeInterval triggers a save after this much time has passed
	TimeInterval time.Duration
}

// DefaultCheckpointConfig provides reasonable defaults for checkpointing
var DefaultCheckpointConfig = CheckpointConfig{
	BytesInterval: 10 * 1024 * 1024, // 10 MB
	TimeInterval:  5 * time.Second,
}

// JobTracker journals each job an orchestrator handles. A nil *JobTracker is
// valid and records nothing.
type JobTracker struct {
	store  store.Store
	config CheckpointConfig
}

// NewJobTracker creates a new JobTracker
func NewJobTracker(store store.Store, config CheckpointConfig) *JobTracker {
	return &JobTracker{
		store:  store,
		config: config,
	}
}

// InitJob journals an accepted job and returns its journal id.
func (jt *JobTracker) InitJob(kind, descriptor string, remoteID string) (string, error) {
	if jt == nil {
		return "", nil
	}
	record := &store.JobRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		Descriptor: descriptor,
		RemoteID:   remoteID,
		State:      store.StatePending,
	}
	return record.ID, jt.store.SaveJob(record)
}

// RecordFailure journals a descriptor that failed before a job existed.
func (jt *JobTracker) RecordFailure(kind, descriptor string, err error) error {
	if jt == nil {
		return nil
	}
	record := &store.JobRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		Descriptor: descriptor,
		State:      store.StateFailed,
	}
	if err != nil {
		record.Error = err.Error()
	}
	return jt.store.SaveJob(record)
}

// MarkInProgress updates a job's state to InProgress
func (jt *JobTracker) MarkInProgress(jobID string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateInProgress
	})
}

// MarkCompleted updates a job's state to Completed
func (jt *JobTracker) MarkCompleted(jobID, result string) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateCompleted
		r.Result = result
		if r.TotalBytes > 0 {
			r.BytesTransferred = r.TotalBytes
		}
	})
}

// MarkFailed updates a job's state to Failed with an error message
func (jt *JobTracker) MarkFailed(jobID string, err error) error {
	return jt.update(jobID, func(r *store.JobRecord) {
		r.State = store.StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	})
}

func (jt *JobTracker) update(jobID string, fn func(*store.JobRecord)) error {
	if jt == nil || jobID == "" {
		return nil
	}
	record, err := jt.store.GetJob(jobID)
	if err != nil {
		return err
	}
	fn(record)
	return jt.store.SaveJob(record)
}

// Checkpointer saves transfer progress for one job at most every
// BytesInterval bytes or TimeInterval, whichever comes first.
type Checkpointer struct {
	tracker *JobTracker
	jobID   string

	mu              sync.Mutex
	lastCheckpoint  int64
	lastCheckpointT time.Time
}

// NewCheckpointer returns a checkpointer for jobID. It is nil when the
// tracker is nil.
func (jt *JobTracker) NewCheckpointer(jobID string) *Checkpointer {
	if jt == nil || jobID == "" {
		return nil
	}
	return &Checkpointer{
		tracker:         jt,
		jobID:           jobID,
		lastCheckpointT: time.Now(),
	}
}

// Update records that transferred of total bytes have moved.
func (c *Checkpointer) Update(transferred, total int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	needsCheckpoint := transferred == total ||
		transferred-c.lastCheckpoint >= c.tracker.config.BytesInterval ||
		time.Since(c.lastCheckpointT) >= c.tracker.config.TimeInterval
	c.mu.Unlock()

	if needsCheckpoint {
		c.checkpoint(transferred, total)
	}
}

func (c *Checkpointer) checkpoint(transferred, total int64) {
	// A failed checkpoint never fails the transfer.
	record, err := c.tracker.store.GetJob(c.jobID)
	if err == nil {
		record.BytesTransferred = transferred
		record.TotalBytes = total
		_ = c.tracker.store.SaveJob(record)

		c.mu.Lock()
		c.lastCheckpoint = transferred
		c.lastCheckpointT = time.Now()
		c.mu.Unlock()
	}
}
