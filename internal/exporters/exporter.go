// Package exporters writes chunks and run metadata to external sinks —
// SQL databases, a document store, and flat files — behind one uniform
// contract so the executor and dispatcher never branch on sink kind.
package exporters

import (
	"context"

	"github.com/docetl-project/docetl/internal/domain"
)

// Status reports an exporter's liveness and basic throughput counters.
type Status struct {
	Connected   bool
	RowsWritten int64
	LastError   string
}

// Exporter is the uniform sink contract: connect once, batch_insert any
// number of times, export run metadata once per run, and close when
// done. The SQL exporters upsert by chunk id and MongoExporter skips
// duplicate ids, so repeating a batch leaves the same rows there;
// FileExporter appends, so a repeated batch is written to its file again.
type Exporter interface {
	Connect(ctx context.Context, cfg map[string]any) error
	BatchInsert(ctx context.Context, chunks []*domain.Chunk) error
	ExportRunMetadata(ctx context.Context, run *domain.PipelineRun) error
	Close(ctx context.Context) error
	Status() Status
}

// DefaultBatchSize is 1000. No exporter in this package reads it: each
// BatchInsert call writes all the chunks it is given without splitting
// them into smaller batches.
const DefaultBatchSize = 1000
