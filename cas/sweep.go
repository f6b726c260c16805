package cas

import (
	"context"
	"os"
)

type SweepOption func(o *sweepOptions)

type sweepOptions struct {
	dryRun bool
}

func WithSweepDryRun(dryRun bool) SweepOption {
	return func(o *sweepOptions) {
		o.dryRun = dryRun
	}
}

// SweepStats reports what a Sweep removed (or would remove under dry run).
type SweepStats struct {
	Removed    int
	BytesFreed int64
}

// Sweep deletes every stored object for which keep returns false. Used by
// garbage collection after metadata rows are removed.
func (s *Store) Sweep(ctx context.Context, keep func(hash string) bool, opts ...SweepOption) (SweepStats, error) {
	o := sweepOptions{}
	for _, applyOpts := range opts {
		applyOpts(&o)
	}

	var stats SweepStats
	err := s.forEachObject(func(hash string, path string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if keep(hash) {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			s.logger.Warn().Err(err).Str("hash", hash).Msg("could not stat object")
			return nil
		}

		if o.dryRun {
			s.logger.Info().Str("hash", hash).Int64("size", info.Size()).Msg("would remove object (dry run)")
		} else {
			if err := os.Remove(path); err != nil {
				s.logger.Warn().Err(err).Str("hash", hash).Msg("could not remove object")
				return nil
			}
			s.logger.Debug().Str("hash", hash).Int64("size", info.Size()).Msg("removed object")
		}

		stats.Removed++
		stats.BytesFreed += info.Size()
		return nil
	})

	return stats, err
}
