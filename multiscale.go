package zarr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MultiscalesKey is the attribute listing the resolution levels of an image.
const MultiscalesKey = "multiscales"

// Multiscale names, in order, the arrays holding each resolution level of
// one image.
type Multiscale struct {
	Version  string              `json:"version"`
	Name     string              `json:"name,omitempty"`
	Datasets []MultiscaleDataset `json:"datasets"`
	Type     string              `json:"type,omitempty"`
}

type MultiscaleDataset struct {
	Path  string   `json:"path"`
	Scale *float64 `json:"scale,omitempty"`
}

// ParseMultiscales reads the multiscales entry of a ".zattrs" document.
// Image servers publish a single object while written pyramids hold a list;
// both decode to a list. Attributes without the entry yield nil, nil.
func ParseMultiscales(zattrs []byte) ([]Multiscale, error) {
	var attrs map[string]json.RawMessage
	if err := json.Unmarshal(zattrs, &attrs); err != nil {
		return nil, fmt.Errorf("reading attributes: %w", err)
	}
	raw, ok := attrs[MultiscalesKey]
	if !ok {
		return nil, nil
	}
	raw = bytes.TrimSpace(raw)

	if len(raw) > 0 && raw[0] == '{' {
		ms := Multiscale{}
		if err := json.Unmarshal(raw, &ms); err != nil {
			return nil, fmt.Errorf("reading %s: %w", MultiscalesKey, err)
		}
		return []Multiscale{ms}, nil
	}
	var mss []Multiscale
	if err := json.Unmarshal(raw, &mss); err != nil {
		return nil, fmt.Errorf("reading %s: %w", MultiscalesKey, err)
	}
	return mss, nil
}

// DatasetPaths lists the paths of every dataset of every multiscale series,
// in order, without duplicates.
func DatasetPaths(mss []Multiscale) []string {
	seen := map[string]struct{}{}
	var paths []string
	for _, ms := range mss {
		for _, ds := range ms.Datasets {
			if _, ok := seen[ds.Path]; ok {
				continue
			}
			seen[ds.Path] = struct{}{}
			paths = append(paths, ds.Path)
		}
	}
	return paths
}
