// Package jobstatus keeps the latest JobResult of asynchronous runs so callers
// can poll them by job id.
package jobstatus

import (
	"context"

	"basegraph.co/distributor/internal/model"
)

type Store interface {
	// Record overwrites the stored result of jobID.
	Record(ctx context.Context, jobID string, result model.JobResult) error
	// Find reports false when jobID is unknown or has expired.
	Find(ctx context.Context, jobID string) (model.JobResult, bool, error)
}
