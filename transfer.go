package zarr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
)

// ChunkPayload is the stored form of one chunk, opaque to the transfer.
type ChunkPayload []byte

// Source provides an array's chunk grid and its chunks. Fetch fails with
// ErrNotFound for an absent chunk and ErrTransient on connection faults.
type Source interface {
	Describe(ctx context.Context) (ArrayDescriptor, error)
	Fetch(ctx context.Context, c ChunkCoord) (ChunkPayload, error)
}

// Destination accepts chunks. Store must be atomic per chunk; it fails
// with ErrWrite when the destination refuses the write.
type Destination interface {
	Store(ctx context.Context, c ChunkCoord, p ChunkPayload) error
}

// Exister is implemented by sources and destinations that can check for a
// chunk without reading it.
type Exister interface {
	Exists(ctx context.Context, c ChunkCoord) (bool, error)
}

// Fetcher is implemented by destinations whose chunks can be read back.
type Fetcher interface {
	Fetch(ctx context.Context, c ChunkCoord) (ChunkPayload, error)
}

type TransferMode string

const (
	// ModeCopy fetches and stores every chunk.
	ModeCopy TransferMode = "copy"
	// ModeResume skips chunks the destination already has.
	ModeResume TransferMode = "resume"
	// ModeVerify only checks that chunks are present; nothing is moved.
	ModeVerify TransferMode = "verify"
)

func ParseTransferMode(s string) (TransferMode, error) {
	switch m := TransferMode(strings.ToLower(s)); m {
	case "", ModeCopy:
		return ModeCopy, nil
	case ModeResume, ModeVerify:
		return m, nil
	}
	return "", fmt.Errorf("unknown transfer mode %q", s)
}

func (m *TransferMode) UnmarshalText(text []byte) error {
	parsed, err := ParseTransferMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// TransferConfig controls one run of the transfer driver.
type TransferConfig struct {
	Mode TransferMode `toml:"mode"`
	// Order lists dimensions from outermost to innermost. Empty means
	// dimension 0 outermost.
	Order []int `toml:"order"`
	// Timeout bounds every fetch, store and existence check. Zero means
	// no limit.
	Timeout Duration `toml:"timeout"`
	// DryRun logs what a copy or resume would do without doing it.
	DryRun bool `toml:"dryrun"`

	// In ModeVerify, which sides must hold every chunk. When neither is
	// set the destination is checked.
	CheckSource      bool `toml:"check_source"`
	CheckDestination bool `toml:"check_destination"`
	// VerifyContent additionally compares source and destination payload
	// digests in ModeVerify.
	VerifyContent bool `toml:"verify_content"`
	// SkipMissing counts a chunk the source does not hold as skipped
	// instead of failing, for arrays whose writer left fill-only chunks
	// unwritten.
	SkipMissing bool `toml:"skip_missing"`
}

// TransferStats counts what a run did.
type TransferStats struct {
	Chunks  int
	Stored  int
	Skipped int
	Checked int
	Bytes   uint64
}

func (s TransferStats) String() string {
	return fmt.Sprintf("%d chunks: %d stored (%s), %d skipped, %d checked",
		s.Chunks, s.Stored, humanize.Bytes(s.Bytes), s.Skipped, s.Checked)
}

func (s *TransferStats) Add(o TransferStats) {
	s.Chunks += o.Chunks
	s.Stored += o.Stored
	s.Skipped += o.Skipped
	s.Checked += o.Checked
	s.Bytes += o.Bytes
}

// Transfer walks a source's chunk grid and moves each chunk to a
// destination, one at a time, stopping at the first failure.
type Transfer struct {
	cfg TransferConfig
	src Source
	dst Destination
}

func NewTransfer(src Source, dst Destination, cfg TransferConfig) *Transfer {
	if cfg.Mode == "" {
		cfg.Mode = ModeCopy
	}
	if cfg.Mode == ModeVerify && !cfg.CheckSource && !cfg.CheckDestination {
		cfg.CheckDestination = true
	}
	return &Transfer{cfg: cfg, src: src, dst: dst}
}

func (t *Transfer) checkCapabilities() error {
	_, srcExists := t.src.(Exister)
	_, dstExists := t.dst.(Exister)
	_, dstFetches := t.dst.(Fetcher)

	switch t.cfg.Mode {
	case ModeCopy:
	case ModeResume:
		if !dstExists {
			return fmt.Errorf("%w: resume needs a destination that can check for chunks", ErrPrecondition)
		}
	case ModeVerify:
		if t.cfg.CheckSource && !srcExists {
			return fmt.Errorf("%w: source cannot check for chunks", ErrPrecondition)
		}
		if t.cfg.CheckDestination && !dstExists {
			return fmt.Errorf("%w: destination cannot check for chunks", ErrPrecondition)
		}
		if t.cfg.VerifyContent && !dstFetches {
			return fmt.Errorf("%w: destination chunks cannot be read back", ErrPrecondition)
		}
	default:
		return fmt.Errorf("unknown transfer mode %q", t.cfg.Mode)
	}
	return nil
}

// Run describes the source once, then handles every chunk coordinate in
// enumeration order. The returned error is a *ChunkError naming the
// coordinate that failed.
func (t *Transfer) Run(ctx context.Context) (TransferStats, error) {
	var stats TransferStats
	if err := t.checkCapabilities(); err != nil {
		return stats, err
	}

	sctx, cancel := t.step(ctx)
	desc, err := t.src.Describe(sctx)
	cancel()
	if err != nil {
		return stats, fmt.Errorf("describing source: %w", classify(err, ErrTransient))
	}
	it, err := NewChunkIterator(desc, t.cfg.Order)
	if err != nil {
		return stats, err
	}

	tlog := NewTimeLog()
	Debugf("Walking %d chunks of shape %v / chunks %v in %s mode", desc.NumChunks(), desc.Shape, desc.Chunks, t.cfg.Mode)
	for it.Next() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		c := it.Coord()
		stats.Chunks++

		switch {
		case t.cfg.Mode == ModeVerify:
			err = t.verify(ctx, c, &stats)
		case t.cfg.DryRun:
			Infof("-- would fetch and store chunk %s", c)
		default:
			err = t.transfer(ctx, c, &stats)
		}
		if err != nil {
			return stats, err
		}
	}
	tlog.Debugf("Walked %s", stats)
	return stats, nil
}

func (t *Transfer) step(ctx context.Context) (context.Context, context.CancelFunc) {
	if t.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(t.cfg.Timeout))
	}
	return context.WithCancel(ctx)
}

func (t *Transfer) transfer(ctx context.Context, c ChunkCoord, stats *TransferStats) error {
	if t.cfg.Mode == ModeResume {
		ok, err := t.exists(ctx, t.dst.(Exister), c)
		if err != nil {
			return &ChunkError{Op: "check", Coord: c, Err: classify(err, ErrTransient)}
		}
		if ok {
			Debugf("chunk %s already stored, skipping", c)
			stats.Skipped++
			return nil
		}
	}

	sctx, cancel := t.step(ctx)
	p, err := t.src.Fetch(sctx, c)
	cancel()
	if err != nil && t.cfg.SkipMissing && errors.Is(err, ErrNotFound) {
		Debugf("chunk %s not in source, skipping", c)
		stats.Skipped++
		return nil
	}
	if err != nil {
		return &ChunkError{Op: "fetch", Coord: c, Err: classify(err, ErrTransient)}
	}

	sctx, cancel = t.step(ctx)
	err = t.dst.Store(sctx, c, p)
	cancel()
	if err != nil {
		return &ChunkError{Op: "store", Coord: c, Err: classify(err, ErrWrite)}
	}
	stats.Stored++
	stats.Bytes += uint64(len(p))
	return nil
}

func (t *Transfer) exists(ctx context.Context, e Exister, c ChunkCoord) (bool, error) {
	sctx, cancel := t.step(ctx)
	defer cancel()
	return e.Exists(sctx, c)
}

func (t *Transfer) verify(ctx context.Context, c ChunkCoord, stats *TransferStats) error {
	sides := []struct {
		name  string
		check bool
		e     interface{}
	}{
		{"source", t.cfg.CheckSource, t.src},
		{"destination", t.cfg.CheckDestination, t.dst},
	}
	for _, side := range sides {
		if !side.check {
			continue
		}
		ok, err := t.exists(ctx, side.e.(Exister), c)
		if err != nil {
			return &ChunkError{Op: "verify", Coord: c, Err: classify(err, ErrTransient)}
		}
		if !ok {
			return &ChunkError{Op: "verify", Coord: c, Err: fmt.Errorf("%w: missing at %s", ErrNotFound, side.name)}
		}
	}

	if t.cfg.VerifyContent {
		sctx, cancel := t.step(ctx)
		want, err := t.src.Fetch(sctx, c)
		cancel()
		if err != nil {
			return &ChunkError{Op: "verify", Coord: c, Err: classify(err, ErrTransient)}
		}
		sctx, cancel = t.step(ctx)
		got, err := t.dst.(Fetcher).Fetch(sctx, c)
		cancel()
		if err != nil {
			return &ChunkError{Op: "verify", Coord: c, Err: classify(err, ErrTransient)}
		}
		if xxhash.Sum64(want) != xxhash.Sum64(got) {
			return &ChunkError{Op: "verify", Coord: c, Err: fmt.Errorf("%w: destination content differs from source", ErrConsistency)}
		}
	}
	stats.Checked++
	return nil
}
