// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package lineage

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/reconcile-engine/pkg/types"
)

// fileFormatVersion is bumped when the on-disk layout changes.
const fileFormatVersion = 1

// File is the on-disk form of one exported snapshot. The researcher can
// export a snapshot and reload it into a later session.
type File struct {
	FormatVersion int            `yaml:"format_version"`
	ExportedAt    time.Time      `yaml:"exported_at"`
	Description   string         `yaml:"description"`
	Snapshot      types.Snapshot `yaml:"snapshot"`
}

// WriteFile exports snap, with its provenance description, to path.
func WriteFile(path string, snap types.Snapshot, description string) error {
	f := File{
		FormatVersion: fileFormatVersion,
		ExportedAt:    time.Now().UTC(),
		Description:   description,
		Snapshot:      snap,
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot file %s: %w", path, err)
	}
	return nil
}

// ReadFile loads an exported snapshot.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading snapshot file %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("parsing snapshot file %s: %w", path, err)
	}
	if f.FormatVersion > fileFormatVersion {
		return File{}, fmt.Errorf("snapshot file %s has format version %d, newest supported is %d",
			path, f.FormatVersion, fileFormatVersion)
	}
	if err := f.Snapshot.Provenance.Validate(); err != nil {
		return File{}, fmt.Errorf("snapshot file %s: %w", path, err)
	}
	return f, nil
}
