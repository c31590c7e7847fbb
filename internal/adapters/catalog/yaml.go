package catalog

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/fedrec/internal/domain/model"
)

type yamlFile struct {
	Videos []model.Candidate `yaml:"videos"`
}

// YAMLSource reads a `videos:` list from a file. The file is re-read when
// its modification time changes.
type YAMLSource struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	items   []model.Candidate
}

// NewYAMLSource creates a source backed by path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// ListCandidates returns the file's videos, reloading it if it changed.
func (s *YAMLSource) ListCandidates(context.Context) ([]model.Candidate, error) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items != nil && fi.ModTime().Equal(s.modTime) {
		return s.items, nil
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f yamlFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", s.path, err)
	}
	if err := validate(f.Videos); err != nil {
		return nil, err
	}
	if f.Videos == nil {
		f.Videos = []model.Candidate{}
	}
	s.items, s.modTime = f.Videos, fi.ModTime()
	return s.items, nil
}
