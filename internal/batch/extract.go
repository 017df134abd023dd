package batch

import (
	"context"
	"log/slog"

	"github.com/jchantrell/nartool/internal/export"
	"github.com/jchantrell/nartool/internal/nar"
)

// ExtractOptions configures Extract.
type ExtractOptions struct {
	Workers  int
	Progress ProgressFunc
}

// Extract writes entries through sink.
func Extract(ctx context.Context, entries []*nar.Entry, sink *export.FileSink, opts ExtractOptions) Outcome {
	slog.Debug("Starting extraction", "entries", len(entries), "workers", opts.Workers)

	out := Run(ctx, entries, opts.Workers, func(_ context.Context, e *nar.Entry) error {
		_, err := sink.Export(e)
		return err
	}, opts.Progress)

	slog.Debug("Extraction finished", "status", out.Status, "processed", out.Processed)
	return out
}
