package batch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jchantrell/nartool/internal/errdefs"
	"github.com/jchantrell/nartool/internal/nar"
)

// VerifyOptions configures Verify.
type VerifyOptions struct {
	Workers  int
	Progress ProgressFunc

	// OnMismatch is called for every entry whose checksum does not match.
	// When it is nil a mismatch fails the batch with ErrChecksumMismatch.
	// Calls may come from several goroutines at once.
	OnMismatch func(e *nar.Entry)
}

// Verify recomputes the stored checksum of every entry.
func Verify(ctx context.Context, entries []*nar.Entry, opts VerifyOptions) Outcome {
	return Run(ctx, entries, opts.Workers, func(_ context.Context, e *nar.Entry) error {
		if opts.OnMismatch == nil {
			return e.Check()
		}
		ok, err := e.Verify()
		if err != nil {
			return err
		}
		if !ok {
			slog.Debug("Checksum mismatch", "path", e.Path, "expected", e.Checksum)
			opts.OnMismatch(e)
		}
		return nil
	}, opts.Progress)
}

// IsMismatch reports whether an outcome failed on a checksum.
func IsMismatch(out Outcome) bool {
	return out.Status == Failed && errors.Is(out.Err, errdefs.ErrChecksumMismatch)
}
