package store

import (
	"path/filepath"
	"testing"
	"time"
)

func TestBoltStore_SaveAndGetJob(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test.db")

	store, err := NewBoltStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	defer store.Close()

	job := &JobRecord{
		ID:         "job-123",
		Kind:       "export",
		Descriptor: "VM 42",
		State:      StatePending,
		TotalBytes: 1024,
	}

	if err := store.SaveJob(job); err != nil {
		t.Fatalf("Failed to save job: %v", err)
	}
	if job.CreatedAt.IsZero() || job.UpdatedAt.IsZero() {
		t.Errorf("Expected timestamps to be stamped on save")
	}

	retrievedJob, err := store.GetJob("job-123")
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}

	if retrievedJob.ID != job.ID {
		t.Errorf("Expected job ID %s, got %s", job.ID, retrievedJob.ID)
	}
	if retrievedJob.Descriptor != "VM 42" {
		t.Errorf("Expected descriptor %q, got %q", "VM 42", retrievedJob.Descriptor)
	}
	if retrievedJob.State != job.State {
		t.Errorf("Expected job State %s, got %s", job.State, retrievedJob.State)
	}

	// Update job state
	job.State = StateInProgress
	job.RemoteID = "9001"
	job.BytesTransferred = 512
	if err := store.SaveJob(job); err != nil {
		t.Fatalf("Failed to update job: %v", err)
	}

	retrievedJob, err = store.GetJob("job-123")
	if err != nil {
		t.Fatalf("Failed to get updated job: %v", err)
	}

	if retrievedJob.State != StateInProgress {
		t.Errorf("Expected updated job State %s, got %s", StateInProgress, retrievedJob.State)
	}
	if retrievedJob.BytesTransferred != 512 {
		t.Errorf("Expected updated bytes %d, got %d", 512, retrievedJob.BytesTransferred)
	}
	if retrievedJob.RemoteID != "9001" {
		t.Errorf("Expected remote id 9001, got %q", retrievedJob.RemoteID)
	}

	// Non-existent job
	_, err = store.GetJob("non-existent")
	if err != ErrJobNotFound {
		t.Errorf("Expected ErrJobNotFound, got %v", err)
	}
}

func TestBoltStore_ListJobs(t *testing.T) {
	store, err := NewBoltStore(filepath.Join(t.TempDir(), "list.db"))
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"c", "a", "b"} {
		job := &JobRecord{ID: id, State: StateCompleted, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.SaveJob(job); err != nil {
			t.Fatalf("Failed to save job: %v", err)
		}
	}

	jobs, err := store.ListJobs()
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("Expected 3 jobs, got %d", len(jobs))
	}
	for i, want := range []string{"c", "a", "b"} {
		if jobs[i].ID != want {
			t.Errorf("jobs[%d] = %s, want %s", i, jobs[i].ID, want)
		}
	}
}

func TestBoltStore_Close(t *testing.T) {
	tempDir := t.TempDir()
	dbPath := filepath.Join(tempDir, "test_close.db")

	store, err := NewBoltStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create BoltStore: %v", err)
	}

	err = store.Close()
	if err != nil {
		t.Errorf("Failed to close BoltStore: %v", err)
	}

	// Try to get a job on closed store
	_, err = store.GetJob("job-123")
	if err == nil {
		t.Error("Expected error when accessing closed store, got nil")
	}
}
