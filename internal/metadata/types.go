// Package metadata implements the File Metadata DB (component J): the
// durable, per-file status/progress table the Processing Queue and Worker
// Pool read and write as a file moves through the indexing pipeline.
package metadata

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status is a file's lifecycle state in the indexing pipeline.
type Status string

const (
	StatusPending      Status = "pending"
	StatusProcessing   Status = "processing"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
	StatusPreprocessed Status = "preprocessed"
)

// GenerateFileID derives the durable fileId from a workspace-relative
// path: SHA256(path), hex-encoded. Stable across re-scans as long as the
// path doesn't change, so progress/retry state survives a restart.
func GenerateFileID(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])
}

// FileRecord is one row of the Metadata DB, per §4.10's attribute list.
type FileRecord struct {
	ID                    string
	Path                  string
	Status                Status
	Progress              int // 0..100
	CurrentStep           string
	Hash                  string
	Size                  int64
	RetryCount            int
	MaxRetries            int
	ErrorMessage          string
	ChunksCount           int
	NodesCount            int
	RelationshipsCount    int
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	EnqueuedAt            time.Time

	// NextEligibleAt is nil for a freshly enqueued file; the Processing
	// Queue's retry backoff sets it on failure and workers skip a pending
	// row until this time has passed.
	NextEligibleAt *time.Time
}

// Patch is a partial update to a FileRecord: nil fields are left
// unchanged. UpdateFile builds its SQL SET clause from whichever fields
// are non-nil.
type Patch struct {
	Status                *Status
	Progress              *int
	CurrentStep           *string
	Hash                  *string
	Size                  *int64
	RetryCount            *int
	MaxRetries            *int
	ErrorMessage          *string
	ChunksCount           *int
	NodesCount            *int
	RelationshipsCount    *int
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	NextEligibleAt        *time.Time
}

// ListOptions paginates and orders the full-table list operation.
type ListOptions struct {
	Page      int // 1-indexed; zero treated as 1
	Limit     int // zero treated as a default page size
	SortBy    string
	SortOrder string // "asc" or "desc"
}

// DefaultListLimit bounds page size when ListOptions.Limit is unset.
const DefaultListLimit = 50

// Store is the File Metadata DB port (component J).
type Store interface {
	InsertFile(ctx context.Context, rec *FileRecord) error
	UpdateFile(ctx context.Context, fileID string, patch *Patch) error
	GetFile(ctx context.Context, fileID string) (*FileRecord, error)
	GetFileByPath(ctx context.Context, path string) (*FileRecord, error)
	ListByStatus(ctx context.Context, status Status) ([]*FileRecord, error)

	// ListEligiblePending returns pending rows whose NextEligibleAt has
	// passed (or is unset), oldest-enqueued first — what a worker polls.
	ListEligiblePending(ctx context.Context, now time.Time, limit int) ([]*FileRecord, error)

	// ClaimNextPending atomically moves the oldest eligible pending row to
	// StatusProcessing and returns it, so exactly one caller ever gets a
	// given file. Returns (nil, nil) when nothing is eligible to claim.
	ClaimNextPending(ctx context.Context, now time.Time) (*FileRecord, error)

	List(ctx context.Context, opts ListOptions) ([]*FileRecord, int, error)
	Delete(ctx context.Context, fileID string) error

	// ResetInFlightToPending resets every row in StatusProcessing back to
	// StatusPending; called once at process start for crash recovery.
	ResetInFlightToPending(ctx context.Context) (int, error)

	Close() error
}
