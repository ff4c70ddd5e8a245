package pipeline

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// Save serializes the pipeline atomically: the artifact is written to a
// temp file in the target directory and renamed into place, so a crash
// mid-write never leaves a half-written artifact a predictor could load.
func (p *Pipeline) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: creating %s: %w", ErrArtifact, dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := gob.NewEncoder(tmp).Encode(p); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%w: encoding: %w", ErrArtifact, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrArtifact, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrArtifact, err)
	}
	return nil
}

// Load reads and validates a serialized pipeline.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrArtifact, path, err)
	}
	defer func() { _ = f.Close() }()

	var p Pipeline
	if err := gob.NewDecoder(f).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", ErrArtifact, path, err)
	}

	if p.Version != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrArtifact, p.Version, FormatVersion)
	}
	if p.Forest == nil || len(p.Classes) == 0 {
		return nil, fmt.Errorf("%w: incomplete artifact %s", ErrArtifact, path)
	}
	if p.Forest.NumFeatures != p.Width() {
		return nil, fmt.Errorf("%w: classifier expects %d features, preprocessing yields %d",
			ErrArtifact, p.Forest.NumFeatures, p.Width())
	}
	return &p, nil
}
