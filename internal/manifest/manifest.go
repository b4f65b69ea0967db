// Package manifest models the evidence manifests produced by the ingestion
// collaborator: one entry per dataset alias, pointing at a columnar file
// with its content hash, row count, and column list. Manifests are read-only
// inputs to compilation and are never mutated by this module.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Manifest describes one ingested dataset.
type Manifest struct {
	DatasetAlias string   `json:"dataset_alias"`
	Path         string   `json:"parquet_path"`
	SHA256       string   `json:"sha256_hash"`
	RowCount     int64    `json:"row_count"`
	Columns      []string `json:"columns"`

	// Source metadata carried through from ingestion; opaque here.
	SourceSystem        string `json:"source_system,omitempty"`
	ExtractionTimestamp string `json:"extraction_timestamp,omitempty"`
	SchemaVersion       string `json:"schema_version,omitempty"`
	IngestedAt          string `json:"ingested_at,omitempty"`
}

// Set maps dataset alias to its manifest.
type Set map[string]Manifest

// Load reads a manifest file: a JSON array of manifest entries as emitted by
// the ingestion collaborator. Duplicate aliases are rejected.
func Load(path string) (Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest file: %w", err)
	}
	return Parse(data)
}

// Parse decodes manifest JSON (array form) into a Set.
func Parse(data []byte) (Set, error) {
	var entries []Manifest
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode manifests: %w", err)
	}

	set := make(Set, len(entries))
	for _, m := range entries {
		if m.DatasetAlias == "" {
			return nil, fmt.Errorf("manifest entry missing dataset_alias (path %q)", m.Path)
		}
		if _, dup := set[m.DatasetAlias]; dup {
			return nil, fmt.Errorf("duplicate dataset_alias %q", m.DatasetAlias)
		}
		set[m.DatasetAlias] = m
	}
	return set, nil
}

// Aliases returns the dataset aliases in sorted order.
func (s Set) Aliases() []string {
	aliases := make([]string, 0, len(s))
	for alias := range s {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

// ColumnSets returns alias -> column list for every dataset. This is the
// shape handed to the rule-translation collaborator during self-healing.
func (s Set) ColumnSets() map[string][]string {
	out := make(map[string][]string, len(s))
	for alias, m := range s {
		out[alias] = m.Columns
	}
	return out
}

// Hashes returns alias -> content hash, the evidence fingerprint persisted
// alongside every verdict.
func (s Set) Hashes() map[string]string {
	out := make(map[string]string, len(s))
	for alias, m := range s {
		out[alias] = m.SHA256
	}
	return out
}

// HashFile computes the SHA-256 hex digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the content hash of the manifest's file and compares it
// to the declared hash. A mismatch means the evidence changed after
// ingestion and the manifest can no longer be trusted.
func (m Manifest) Verify() error {
	actual, err := HashFile(m.Path)
	if err != nil {
		return err
	}
	if actual != m.SHA256 {
		return fmt.Errorf("evidence hash mismatch for %s: manifest declares %s, file is %s",
			m.DatasetAlias, m.SHA256, actual)
	}
	return nil
}
