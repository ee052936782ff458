package meta

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/dashdock/dashdock/internal/domain"
)

// SideFileName is written into each installed docset's directory after a
// successful extraction. It is what makes a docset updatable later.
const SideFileName = "meta.json"

// WriteSideFile serializes m into dir/meta.json.
func WriteSideFile(fs afero.Fs, dir string, m domain.DocsetMetadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, filepath.Join(dir, SideFileName), data, 0644)
}

// ReadSideFile loads the metadata side file from a docset directory.
func ReadSideFile(fs afero.Fs, dir string) (domain.DocsetMetadata, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, SideFileName))
	if err != nil {
		return domain.DocsetMetadata{}, err
	}
	var m domain.DocsetMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.DocsetMetadata{}, err
	}
	return m, nil
}
