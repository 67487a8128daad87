package storage

import (
	"context"

	"spikegen/internal/model"
)

// Store defines transaction-like persistence for compile runs and the merged
// struct layouts they produced.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]model.RunRecord, error)
	SaveLayouts(ctx context.Context, runID string, layouts []model.LayoutRecord) error
	GetLayout(ctx context.Context, runID, typeName string) (model.LayoutRecord, bool, error)
	// ListLayouts returns the layouts of one run in emission order.
	ListLayouts(ctx context.Context, runID string) ([]model.LayoutRecord, bool, error)
}
