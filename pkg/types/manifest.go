package types

import (
	"encoding/json"
	"fmt"
	"os"
)

// ManifestFileName is the asset manifest the sorter writes into each
// conversation folder. Consumers must skip it when looking for the
// conversation JSON itself.
const ManifestFileName = "assets_manifest.json"

// LoadManifest reads an asset manifest. A missing file yields an empty
// manifest since conversations without attachments never get one.
func LoadManifest(path string) (*AssetManifest, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &AssetManifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("types: read manifest %s: %w", path, err)
	}
	var m AssetManifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("types: decode manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save writes the manifest as indented JSON to path.
func (m *AssetManifest) Save(path string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("types: encode manifest: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("types: write manifest %s: %w", path, err)
	}
	return nil
}
