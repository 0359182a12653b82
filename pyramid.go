package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Method names a downsampling method.
type Method string

const (
	MethodNearest   Method = "nearest"
	MethodZoom      Method = "zoom"
	MethodLocalMean Method = "local_mean"
	MethodGaussian  Method = "gaussian"
	MethodLaplacian Method = "laplacian"
)

var Methods = []Method{MethodNearest, MethodZoom, MethodLocalMean, MethodGaussian, MethodLaplacian}

func ParseMethod(s string) (Method, error) {
	m := Method(strings.ReplaceAll(strings.ToLower(s), "-", "_"))
	for _, known := range Methods {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown downsampling method %q", s)
}

func (m *Method) UnmarshalText(text []byte) error {
	parsed, err := ParseMethod(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// PyramidConfig controls a pyramid build.
type PyramidConfig struct {
	Method    Method `toml:"method"`
	Downscale int    `toml:"downscale"`
	// MaxLayer is the number of levels generated above the base.
	MaxLayer int `toml:"max_layer"`
	// Labeled requires every level's values to be a subset of the base's.
	Labeled      bool `toml:"labeled"`
	CopyMetadata bool `toml:"copy_metadata"`
	// InPlace means the input already lives in the output group and is not
	// copied.
	InPlace     bool   `toml:"in_place"`
	Consolidate bool   `toml:"consolidate"`
	BasePath    string `toml:"base_path"`
	Name        string `toml:"name"`
	// Timeout bounds each chunk read or write.
	Timeout Duration `toml:"timeout"`
}

func DefaultPyramidConfig() PyramidConfig {
	return PyramidConfig{
		Method:    MethodNearest,
		Downscale: 2,
		MaxLayer:  4,
		BasePath:  "base",
		Name:      "default",
	}
}

func (c PyramidConfig) Validate() error {
	if _, err := ParseMethod(string(c.Method)); err != nil {
		return err
	}
	if c.Downscale < 2 {
		return fmt.Errorf("downscale must be at least 2, got %d", c.Downscale)
	}
	if c.MaxLayer < 0 {
		return fmt.Errorf("max layer must not be negative, got %d", c.MaxLayer)
	}
	if c.BasePath == "" {
		return fmt.Errorf("base path must not be empty")
	}
	if _, err := strconv.Atoi(c.BasePath); err == nil {
		return fmt.Errorf("base path %q collides with level names", c.BasePath)
	}
	return nil
}

// PyramidBuilder writes a multiresolution pyramid of one array as a group
// of level arrays with a multiscales manifest.
type PyramidBuilder struct {
	cfg PyramidConfig
	src Store
	dst Store
}

func NewPyramidBuilder(src, dst Store, cfg PyramidConfig) (*PyramidBuilder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PyramidBuilder{cfg: cfg, src: src, dst: dst}, nil
}

func (b *PyramidBuilder) transferConfig() TransferConfig {
	return TransferConfig{Mode: ModeCopy, Timeout: b.cfg.Timeout}
}

// Build reads the array at input and writes its pyramid to the group at
// output. With InPlace, input must already be the base of output. A failing
// level is reported as a *LevelError and no later level is written.
func (b *PyramidBuilder) Build(ctx context.Context, input, output string) (*Multiscale, error) {
	tlog := NewTimeLog()
	base, err := Open(ctx, b.src, input, ModeRead)
	if err != nil {
		return nil, err
	}
	if len(base.Meta().Shape) < 2 {
		return nil, fmt.Errorf("array %q has %d dimensions, a pyramid needs at least 2", input, len(base.Meta().Shape))
	}

	outPath, err := NewPath(output)
	if err != nil {
		return nil, err
	}
	if b.cfg.InPlace {
		inPath, err := NewPath(input)
		if err != nil {
			return nil, err
		}
		if want := JoinKey(outPath.String(), b.cfg.BasePath); inPath.String() != want {
			return nil, fmt.Errorf("%w: in place input %q is not the base %q of the output", ErrPrecondition, input, want)
		}
	} else {
		exists, err := containsNode(ctx, b.dst, outPath)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, fmt.Errorf("%w: output %q already exists", ErrPrecondition, output)
		}
	}

	data, err := base.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading base %q: %w", input, err)
	}
	tlog.Debugf("Read base %s", base.Info())

	if err := CreateGroup(ctx, b.dst, output); err != nil {
		return nil, err
	}
	if !b.cfg.InPlace {
		tc := b.transferConfig()
		tc.SkipMissing = true
		stats, err := CopyArray(ctx, base, b.dst, JoinKey(output, b.cfg.BasePath), tc)
		if err != nil {
			return nil, &LevelError{Level: 0, Path: b.cfg.BasePath, Err: err}
		}
		Debugf("Copied base: %s", stats)
	}

	ms := &Multiscale{
		Version:  "0.1",
		Name:     b.cfg.Name,
		Type:     string(b.cfg.Method),
		Datasets: []MultiscaleDataset{{Path: b.cfg.BasePath}},
	}

	var labels map[float64]struct{}
	if b.cfg.Labeled {
		labels = data.Unique()
		Infof("Base %q holds %d distinct labels", input, len(labels))
	}

	next := levels(b.cfg.Method, data, b.cfg.Downscale)
	shape := data.Shape
	for k := 1; k <= b.cfg.MaxLayer; k++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		level, ok := next()
		if !ok {
			Infof("Stopping after %d levels: %s can not reduce shape %v further", k-1, b.cfg.Method, shape)
			break
		}
		path := strconv.Itoa(k)
		if labels != nil {
			if err := checkLabels(labels, level); err != nil {
				return nil, &LevelError{Level: k, Path: path, Err: err}
			}
		}
		if err := b.writeLevel(ctx, base.Meta(), level, JoinKey(output, path)); err != nil {
			return nil, &LevelError{Level: k, Path: path, Err: err}
		}
		ms.Datasets = append(ms.Datasets, MultiscaleDataset{Path: path})
		shape = level.Shape
		tlog.Infof("Wrote level %d with shape %v", k, level.Shape)
	}

	if err := b.writeManifest(ctx, base, output, ms); err != nil {
		return nil, err
	}
	if b.cfg.Consolidate {
		paths := make([]string, len(ms.Datasets))
		for i, ds := range ms.Datasets {
			paths[i] = ds.Path
		}
		if err := Consolidate(ctx, b.dst, output, paths); err != nil {
			return nil, err
		}
	}
	tlog.Infof("Built %d level pyramid at %q", len(ms.Datasets), output)
	return ms, nil
}

// levelMeta describes a level array: chunks are the base chunks clipped to
// the level shape, nearest keeps the base dtype and every other method
// stores float64.
func (b *PyramidBuilder) levelMeta(base *ArrayMeta, shape []int) *ArrayMeta {
	chunks := make([]int, len(shape))
	for i, n := range shape {
		chunks[i] = minInt(base.Chunks[i], n)
		if chunks[i] < 1 {
			chunks[i] = 1
		}
	}
	dtype := base.Dtype
	fill := base.FillValue
	if b.cfg.Method != MethodNearest {
		dtype = StructuredType{Dtype: MustParseDtype("<f8")}
		if fv, err := base.Fill(); err == nil {
			fill = FillValueJSON(fv)
		}
	}
	return &ArrayMeta{
		ZarrFormat:         Version,
		Shape:              append([]int(nil), shape...),
		Chunks:             chunks,
		Dtype:              dtype,
		Compressor:         base.Compressor,
		FillValue:          fill,
		Order:              "C",
		DimensionSeparator: base.DimensionSeparator,
	}
}

func (b *PyramidBuilder) writeLevel(ctx context.Context, base *ArrayMeta, level *NDArray, path string) error {
	meta := b.levelMeta(base, level.Shape)
	if !meta.Compressor.CanCompress() {
		Warningf("No %q encoder, level %q is stored uncompressed", meta.Compressor.ID, path)
		meta.Compressor = nil
	}
	a, err := Create(ctx, b.dst, path, meta, ModeWriteFail)
	if err != nil {
		return err
	}
	stats, err := a.WriteAll(ctx, level, b.transferConfig())
	if err != nil {
		return err
	}
	Debugf("Level %q: %s", path, stats)
	return nil
}

func (b *PyramidBuilder) writeManifest(ctx context.Context, base *Array, output string, ms *Multiscale) error {
	attrs := Attributes{}
	if b.cfg.CopyMetadata {
		data, err := ReadKey(ctx, base.Store(), JoinKey(base.Path(), string(MTAttributes)))
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &attrs); err != nil {
				return fmt.Errorf("reading base attributes: %w", err)
			}
		}
	}
	attrs[MultiscalesKey] = []Multiscale{*ms}
	data, err := json.MarshalIndent(attrs, "", "    ")
	if err != nil {
		return err
	}
	return WriteKey(ctx, b.dst, JoinKey(output, string(MTAttributes)), data)
}

// checkLabels fails with ErrConsistency when level holds a value missing
// from labels.
func checkLabels(labels map[float64]struct{}, level *NDArray) error {
	var extra int
	found := level.Unique()
	for v := range found {
		if _, ok := labels[v]; !ok {
			extra++
		}
	}
	if extra > 0 {
		return fmt.Errorf("%w: %d of %d values are not labels of the base", ErrConsistency, extra, len(found))
	}
	return nil
}

// CopyArray copies the metadata and every stored chunk of a to path in dst
// without recompressing. A missing source chunk fails the copy unless
// cfg.SkipMissing is set. In verify mode the destination must already exist
// and nothing is written.
func CopyArray(ctx context.Context, a *Array, dst Store, path string, cfg TransferConfig) (TransferStats, error) {
	var (
		out *Array
		err error
	)
	switch cfg.Mode {
	case ModeVerify:
		out, err = Open(ctx, dst, path, ModeRead)
	case ModeResume:
		meta := *a.Meta()
		out, err = Create(ctx, dst, path, &meta, ModeReadWriteCreate)
	default:
		meta := *a.Meta()
		out, err = Create(ctx, dst, path, &meta, ModeWriteFail)
	}
	if err != nil {
		return TransferStats{}, err
	}
	return NewTransfer(NewArraySource(a), NewArrayDestination(out), cfg).Run(ctx)
}
