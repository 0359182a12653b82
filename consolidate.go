package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ConsolidatedFormat is the zarr_consolidated_format version written.
const ConsolidatedFormat = 1

// Consolidate gathers the ".zgroup" and ".zattrs" of group and the
// ".zarray" and ".zattrs" of each child path into a ".zmetadata" document
// at group. Keys in the document are relative to group.
func Consolidate(ctx context.Context, store Store, group string, children []string) error {
	cm := ConsolidatedMetadata{
		ConsolidatedFormat: ConsolidatedFormat,
		Metadata:           map[string]MetaTyper{},
	}

	add := func(rel string, mt MetaType, required bool) error {
		key := JoinKey(rel, string(mt))
		data, err := ReadKey(ctx, store, JoinKey(group, key))
		if errors.Is(err, ErrNotFound) && !required {
			return nil
		}
		if err != nil {
			return err
		}
		var doc MetaTyper
		switch mt {
		case MTArray:
			doc = &ArrayMeta{}
		case MTGroup:
			doc = &Group{}
		default:
			doc = &Attributes{}
		}
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("reading %q: %w", key, err)
		}
		cm.Metadata[key] = doc
		return nil
	}

	if err := add("", MTGroup, true); err != nil {
		return err
	}
	if err := add("", MTAttributes, false); err != nil {
		return err
	}
	for _, child := range children {
		if err := add(child, MTArray, true); err != nil {
			return err
		}
		if err := add(child, MTAttributes, false); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(cm, "", "    ")
	if err != nil {
		return err
	}
	return WriteKey(ctx, store, JoinKey(group, string(MTMetadata)), data)
}

// ReadConsolidated reads the ".zmetadata" document of group.
func ReadConsolidated(ctx context.Context, store Store, group string) (*ConsolidatedMetadata, error) {
	data, err := ReadKey(ctx, store, JoinKey(group, string(MTMetadata)))
	if err != nil {
		return nil, err
	}
	cm := &ConsolidatedMetadata{}
	if err := json.Unmarshal(data, cm); err != nil {
		return nil, fmt.Errorf("reading consolidated metadata: %w", err)
	}
	return cm, nil
}
