package zarr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Mirror copies an array, or a group and every array its multiscales
// attribute lists, from one store to another. A group without multiscales
// has its arrays found by listing the source, when the source is a Lister. Metadata documents are copied
// byte for byte; chunk payloads are moved still compressed. An array's
// ".zarray" is written only once all its chunks are stored, so an array
// with metadata at the destination is complete.
type Mirror struct {
	src Store
	dst Store
	cfg TransferConfig
}

func NewMirror(src, dst Store, cfg TransferConfig) *Mirror {
	return &Mirror{src: src, dst: dst, cfg: cfg}
}

func (m *Mirror) writes() bool {
	return m.cfg.Mode != ModeVerify && !m.cfg.DryRun
}

// Run mirrors the node at srcPath to dstPath.
func (m *Mirror) Run(ctx context.Context, srcPath, dstPath string) (TransferStats, error) {
	var stats TransferStats
	tlog := NewTimeLog()

	zgroup, err := ReadKey(ctx, m.src, JoinKey(srcPath, string(MTGroup)))
	if errors.Is(err, ErrNotFound) {
		stats, err = m.array(ctx, srcPath, dstPath)
		if err == nil {
			tlog.Infof("Mirrored array %q: %s", srcPath, stats)
		}
		return stats, err
	}
	if err != nil {
		return stats, fmt.Errorf("reading group %q: %w", srcPath, err)
	}

	zattrs, err := m.optional(ctx, JoinKey(srcPath, string(MTAttributes)))
	if err != nil {
		return stats, err
	}
	var paths []string
	if zattrs != nil {
		mss, err := ParseMultiscales(zattrs)
		if err != nil {
			return stats, fmt.Errorf("group %q: %w", srcPath, err)
		}
		paths = DatasetPaths(mss)
	}
	if len(paths) == 0 {
		if paths, err = m.listArrays(ctx, srcPath); err != nil {
			return stats, err
		}
	}
	if len(paths) == 0 {
		return stats, fmt.Errorf("%w: group %q holds no multiscales datasets or arrays", ErrPrecondition, srcPath)
	}
	Infof("Mirroring %d datasets of %q", len(paths), srcPath)

	for _, p := range paths {
		s, err := m.array(ctx, JoinKey(srcPath, p), JoinKey(dstPath, p))
		stats.Add(s)
		if err != nil {
			return stats, err
		}
		tlog.Infof("Dataset %q: %s", p, s)
	}

	if !m.writes() {
		return stats, nil
	}
	zmetadata, err := m.optional(ctx, JoinKey(srcPath, string(MTMetadata)))
	if err != nil {
		return stats, err
	}
	docs := []struct {
		mt   MetaType
		data []byte
	}{
		{MTGroup, zgroup},
		{MTAttributes, zattrs},
		{MTMetadata, zmetadata},
	}
	for _, doc := range docs {
		if doc.data == nil {
			continue
		}
		if err := WriteKey(ctx, m.dst, JoinKey(dstPath, string(doc.mt)), doc.data); err != nil {
			return stats, classify(err, ErrWrite)
		}
	}
	tlog.Infof("Mirrored group %q: %s", srcPath, stats)
	return stats, nil
}

// listArrays returns the paths, relative to group, of every array stored
// below it. Stores that cannot list yield none.
func (m *Mirror) listArrays(ctx context.Context, group string) ([]string, error) {
	l, ok := m.src.(Lister)
	if !ok {
		return nil, nil
	}
	prefix := JoinKey(group)
	if prefix != "" {
		prefix += "/"
	}
	keys, err := l.Keys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing group %q: %w", group, err)
	}
	suffix := "/" + string(MTArray)
	var paths []string
	for _, k := range keys {
		if strings.HasSuffix(k, suffix) {
			paths = append(paths, strings.TrimSuffix(strings.TrimPrefix(k, prefix), suffix))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// optional reads key, returning nil when it is absent.
func (m *Mirror) optional(ctx context.Context, key string) ([]byte, error) {
	data, err := ReadKey(ctx, m.src, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return data, err
}

func (m *Mirror) array(ctx context.Context, srcPath, dstPath string) (TransferStats, error) {
	p, err := NewPath(srcPath)
	if err != nil {
		return TransferStats{}, err
	}
	q, err := NewPath(dstPath)
	if err != nil {
		return TransferStats{}, err
	}
	zarray, err := ReadKey(ctx, m.src, p.Join(string(MTArray)).String())
	if err != nil {
		return TransferStats{}, fmt.Errorf("opening array %q: %w", srcPath, err)
	}
	src, err := decodeArray(p, m.src, ModeRead, zarray)
	if err != nil {
		return TransferStats{}, err
	}
	dst := &Array{path: q, store: m.dst, mode: ModeWrite, meta: src.meta}
	Debugf("Mirroring %s to %q", src.Info(), dstPath)

	stats, err := NewTransfer(NewArraySource(src), NewArrayDestination(dst), m.cfg).Run(ctx)
	if err != nil || !m.writes() {
		return stats, err
	}

	zattrs, err := m.optional(ctx, p.Join(string(MTAttributes)).String())
	if err != nil {
		return stats, err
	}
	if zattrs != nil {
		if err := WriteKey(ctx, m.dst, q.Join(string(MTAttributes)).String(), zattrs); err != nil {
			return stats, classify(err, ErrWrite)
		}
	}
	if err := WriteKey(ctx, m.dst, q.Join(string(MTArray)).String(), zarray); err != nil {
		return stats, classify(err, ErrWrite)
	}
	return stats, nil
}
