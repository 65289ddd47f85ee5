// Package history records every filter run for later inspection.
//
// This package defines the Run record and the Store interface, with
// implementations for different backends:
//   - file: one JSON file per run, for the CLI
//   - mongo: a shared collection for server deployments
//   - null: recording disabled
//
// # Usage
//
//	store, err := history.NewFileStore("")  // ~/.config/dogstack/history/
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	run := history.NewRun(history.SourceCLI)
//	// ... process inputs, fill in run.Inputs ...
//	run.Finish(err)
//	_ = store.Record(ctx, run)
//
//	runs, err := store.List(ctx, 20)  // newest first
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	errs "github.com/matzehuels/dogstack/pkg/errors"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// Run sources.
const (
	SourceCLI = "cli"
	SourceAPI = "api"
)

// Run statuses.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Params are the filter settings a run used.
type Params struct {
	Sigma    float64 `json:"sigma" bson:"sigma"`
	K        float64 `json:"k" bson:"k"`
	Radius   string  `json:"radius" bson:"radius"`
	Boundary string  `json:"boundary" bson:"boundary"`
	Method   string  `json:"method" bson:"method"`
	Workers  int     `json:"workers" bson:"workers"`
}

// Input describes one processed image.
type Input struct {
	Name   string `json:"name" bson:"name"`
	Hash   string `json:"hash,omitempty" bson:"hash,omitempty"`
	Width  int    `json:"width" bson:"width"`
	Height int    `json:"height" bson:"height"`
	Cached bool   `json:"cached" bson:"cached"`
}

// Run is one invocation of the pipeline over a batch of inputs.
type Run struct {
	ID          string        `json:"id" bson:"_id"`
	Source      string        `json:"source" bson:"source"`
	StartedAt   time.Time     `json:"started_at" bson:"started_at"`
	Duration    time.Duration `json:"duration" bson:"duration"`
	Params      Params        `json:"params" bson:"params"`
	Inputs      []Input       `json:"inputs" bson:"inputs"`
	Output      string        `json:"output,omitempty" bson:"output,omitempty"`
	Width       int           `json:"width" bson:"width"`
	Height      int           `json:"height" bson:"height"`
	Status      string        `json:"status" bson:"status"`
	Error       string        `json:"error,omitempty" bson:"error,omitempty"`
	FailedInput string        `json:"failed_input,omitempty" bson:"failed_input,omitempty"`
}

// NewRun starts a run record with a fresh ID.
func NewRun(source string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
}

// Finish stamps the duration and outcome. A nil err marks the run OK.
func (r *Run) Finish(err error) {
	r.Duration = time.Since(r.StartedAt)
	if err == nil {
		r.Status = StatusOK
		return
	}
	r.Status = StatusFailed
	r.Error = err.Error()
	if input, ok := errs.FailedInput(err); ok {
		r.FailedInput = input
	}
}

// CacheHits counts inputs served from the cache.
func (r *Run) CacheHits() int {
	n := 0
	for _, in := range r.Inputs {
		if in.Cached {
			n++
		}
	}
	return n
}

// Store is the interface for run history backends.
type Store interface {
	// Record persists a finished run.
	Record(ctx context.Context, run *Run) error

	// Get retrieves a run by ID. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*Run, error)

	// List returns up to limit runs, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Run, error)

	// Close releases backend resources.
	Close() error
}

// NullStore discards every run.
type NullStore struct{}

func (NullStore) Record(context.Context, *Run) error { return nil }

func (NullStore) Get(_ context.Context, id string) (*Run, error) { return nil, ErrNotFound }

func (NullStore) List(context.Context, int) ([]*Run, error) { return nil, nil }

func (NullStore) Close() error { return nil }

var _ Store = NullStore{}
