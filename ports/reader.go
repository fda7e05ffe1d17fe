package ports

import (
	"context"

	"hypoforge/domain/dataset"
)

// DatasetLoader fetches a tabular file and infers column types
type DatasetLoader interface {
	// Load accepts an http(s) URL or a file path
	Load(ctx context.Context, location string) (*dataset.Dataset, error)
}
