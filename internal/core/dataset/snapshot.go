package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/seccerts/certpipe/internal/core/domain"
)

// snapshotEnvelope is the interchange format:
// {schema_version, snapshot_metadata, records}.
type snapshotEnvelope struct {
	SchemaVersion string               `json:"schema_version"`
	Metadata      SnapshotMetadata     `json:"snapshot_metadata"`
	Records       []domain.Certificate `json:"records"`
}

// versionProbe decodes only the schema version, so an incompatible snapshot
// is rejected before any record is constructed.
type versionProbe struct {
	SchemaVersion string `json:"schema_version"`
}

// Snapshot serializes the dataset. Serialization is stable: records appear
// in insertion order and map keys are emitted sorted, so loading a snapshot
// and re-serializing it reproduces the bytes for unchanged data.
func (d *Dataset) Snapshot() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	env := snapshotEnvelope{
		SchemaVersion: SchemaVersion,
		Metadata:      d.meta,
		Records:       make([]domain.Certificate, 0, len(d.order)),
	}
	for _, id := range d.order {
		env.Records = append(env.Records, *d.records[id])
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

// Load builds a dataset from snapshot bytes. A schema mismatch fails with
// domain.SchemaMismatchError and constructs nothing.
func Load(data []byte) (*Dataset, error) {
	var probe versionProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if probe.SchemaVersion != SchemaVersion {
		return nil, &domain.SchemaMismatchError{Got: probe.SchemaVersion, Want: SchemaVersion}
	}

	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	d := New()
	d.meta = env.Metadata
	for i := range env.Records {
		rec := env.Records[i]
		d.order = append(d.order, rec.CertID)
		d.records[rec.CertID] = &rec
	}
	return d, nil
}

// WriteFile persists a snapshot atomically (temp file plus rename).
func (d *Dataset) WriteFile(path string) error {
	data, err := d.Snapshot()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// ReadFile loads a snapshot from disk.
func ReadFile(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return Load(data)
}
