package zarr

import (
	"context"
	"errors"
	"fmt"
)

// Rechunk rewrites the array at srcPath as a new array at dstPath with the
// given chunk shape. Dtype, compressor, fill value and attributes carry
// over.
func Rechunk(ctx context.Context, src Store, srcPath string, dst Store, dstPath string, chunks []int, cfg TransferConfig) (TransferStats, error) {
	a, err := Open(ctx, src, srcPath, ModeRead)
	if err != nil {
		return TransferStats{}, err
	}
	if len(chunks) != len(a.Meta().Shape) {
		return TransferStats{}, fmt.Errorf("array %q has %d dimensions, got %d chunk sizes", srcPath, len(a.Meta().Shape), len(chunks))
	}

	tlog := NewTimeLog()
	nd, err := a.ReadAll(ctx)
	if err != nil {
		return TransferStats{}, err
	}
	tlog.Debugf("Read %s", a.Info())

	meta := *a.Meta()
	meta.Chunks = append([]int(nil), chunks...)
	out, err := Create(ctx, dst, dstPath, &meta, ModeWriteFail)
	if err != nil {
		return TransferStats{}, err
	}
	stats, err := out.WriteAll(ctx, nd, cfg)
	if err != nil {
		return stats, err
	}

	attrs, err := ReadKey(ctx, src, JoinKey(srcPath, string(MTAttributes)))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return stats, err
	default:
		if err := WriteKey(ctx, dst, JoinKey(dstPath, string(MTAttributes)), attrs); err != nil {
			return stats, err
		}
	}
	tlog.Infof("Rechunked %q to chunks %v: %s", srcPath, chunks, stats)
	return stats, nil
}
