package zarr

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

type MetaType string

const (
	// MTAttributes stores userland metadata keyed by array name
	MTAttributes MetaType = ".zattrs"
	// MTArray is the key for storing metadata on an array store
	MTArray MetaType = ".zarray"
	// MTGroup is the key for storing group definitions on an array store
	MTGroup MetaType = ".zgroup"
	// MTMetadata is the key for composite metadata
	MTMetadata MetaType = ".zmetadata"
)

type MetaTyper interface {
	MetaType() MetaType
}

var metaTypes = map[MetaType]struct{}{
	MTAttributes: {},
	MTArray:      {},
	MTGroup:      {},
}

// KeyMetaType reports the metadata kind stored under key, if any.
func KeyMetaType(key string) (mt MetaType, ok bool) {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		key = key[i+1:]
	}
	mt = MetaType(key)
	_, ok = metaTypes[mt]
	return mt, ok
}

type Attributes map[string]interface{}

func (Attributes) MetaType() MetaType { return MTAttributes }

// ConsolidatedMetadata gathers all metadata documents of a hierarchy into
// a single ".zmetadata" document keyed by store path.
type ConsolidatedMetadata struct {
	ConsolidatedFormat int                  `json:"zarr_consolidated_format"`
	Metadata           map[string]MetaTyper `json:"metadata"`
}

type consolidatedMetaDecoder struct {
	ConsolidatedFormat int                        `json:"zarr_consolidated_format"`
	Metadata           map[string]json.RawMessage `json:"metadata"`
}

func (m *ConsolidatedMetadata) UnmarshalJSON(d []byte) error {
	cd := consolidatedMetaDecoder{}
	if err := json.Unmarshal(d, &cd); err != nil {
		return err
	}
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: cd.ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	for key, data := range cd.Metadata {
		kt, ok := KeyMetaType(key)
		if !ok {
			return fmt.Errorf("invalid consolidated metadata key: %q", key)
		}

		switch kt {
		case MTArray:
			arr := &ArrayMeta{}
			if err := json.Unmarshal(data, arr); err != nil {
				return fmt.Errorf("reading %q metadata: %w", key, err)
			}
			cm.Metadata[key] = arr
		case MTAttributes:
			attr := Attributes{}
			if err := json.Unmarshal(data, &attr); err != nil {
				return fmt.Errorf("reading %q attributes: %w", key, err)
			}
			cm.Metadata[key] = attr
		case MTGroup:
			grp := &Group{}
			if err := json.Unmarshal(data, grp); err != nil {
				return fmt.Errorf("reading %q group: %w", key, err)
			}
			cm.Metadata[key] = grp
		}
	}

	*m = cm
	return nil
}

// ArrayMeta is the configuration metadata stored as JSON under the
// ".zarray" key of an array, enabling correct interpretation of the
// stored data.
type ArrayMeta struct {
	// Version of the storage specification the array store adheres to.
	ZarrFormat int `json:"zarr_format"`
	// Length of each dimension of the array.
	Shape []int `json:"shape"`
	// Length of each dimension of a chunk. All chunks within an array have
	// the same shape.
	Chunks []int `json:"chunks"`
	// Data type of the array.
	Dtype StructuredType `json:"dtype"`
	// Primary compression codec, or null if no compressor is used.
	Compressor *CompressionMeta `json:"compressor"`
	// Default value for uninitialized portions of the array, or null.
	// Either a number, or one of "NaN", "Infinity", "-Infinity".
	FillValue interface{} `json:"fill_value"`
	// Either "C" or "F", the layout of bytes within each chunk.
	Order string `json:"order"`
	// Codec configurations applied before the compressor, or null.
	Filters []Filter `json:"filters"`
	// Either "." or "/", the separator placed between the dimensions of a
	// chunk key. When unset "." MUST be assumed, giving keys like "0.0";
	// "/" gives nested keys like "0/0" that SHOULD produce a
	// directory-like structure.
	DimensionSeparator string `json:"dimension_separator,omitempty"`
}

func (a ArrayMeta) MetaType() MetaType { return MTArray }

// Descriptor is the chunk grid of the array.
func (a *ArrayMeta) Descriptor() ArrayDescriptor {
	return ArrayDescriptor{Shape: a.Shape, Chunks: a.Chunks}
}

// Separator is the dimension separator with the "." default applied.
func (a *ArrayMeta) Separator() string {
	if a.DimensionSeparator == "" {
		return "."
	}
	return a.DimensionSeparator
}

// Validate checks the parts of the metadata needed to enumerate chunks.
func (a *ArrayMeta) Validate() error {
	if err := a.Descriptor().Validate(); err != nil {
		return err
	}
	switch a.DimensionSeparator {
	case "", ".", "/":
	default:
		return fmt.Errorf("invalid dimension separator %q", a.DimensionSeparator)
	}
	return nil
}

// ChunkBytes is the decompressed size of one chunk.
func (a *ArrayMeta) ChunkBytes() int {
	return product(a.Chunks) * a.Dtype.Dtype.ByteSize
}

// Fill returns the fill value as a float64.
func (a *ArrayMeta) Fill() (float64, error) {
	switch v := a.FillValue.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		switch v {
		case FillValueNaN:
			return math.NaN(), nil
		case FillValueInfinity:
			return math.Inf(1), nil
		case FillValueNegativeInfinity:
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("unsupported fill value %v", a.FillValue)
}

// FillValueJSON is the fill_value encoding of v; JSON has no literal for
// NaN or the infinities.
func FillValueJSON(v float64) interface{} {
	switch {
	case math.IsNaN(v):
		return FillValueNaN
	case math.IsInf(v, 1):
		return FillValueInfinity
	case math.IsInf(v, -1):
		return FillValueNegativeInfinity
	}
	return v
}

type Filter struct {
	ID     string `json:"id"`
	Delta  string `json:"delta,omitempty"`
	Dtype  string `json:"dtype,omitempty"`
	AsType string `json:"astype,omitempty"`
}

const (
	// Not a Number
	FillValueNaN = "NaN"
	// Infinity
	FillValueInfinity = "Infinity"
	// -Infinity
	FillValueNegativeInfinity = "-Infinity"
)

// Group marks a logical path as a group of arrays and groups. A group
// exists at logical path "foo/bar" if the "foo/bar/.zgroup" key exists.
type Group struct {
	ZarrFormat int `json:"zarr_format"`
}

func (Group) MetaType() MetaType { return MTGroup }
