package handlers

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/review-relay/internal/config"
)

// ArtifactStore writes analyses under <base>/<kind dir>/<file>
type ArtifactStore struct {
	baseDir string
	dirs    map[string]string
}

// NewArtifactStore creates a store from output configuration
func NewArtifactStore(cfg config.OutputsConfig) *ArtifactStore {
	dirs := make(map[string]string, len(cfg.Directories))
	for k, v := range cfg.Directories {
		dirs[k] = v
	}
	return &ArtifactStore{baseDir: cfg.BaseDir, dirs: dirs}
}

// Dir returns the directory used for kind
func (s *ArtifactStore) Dir(kind string) string {
	sub, ok := s.dirs[kind]
	if !ok || sub == "" {
		sub = kind
	}
	return filepath.Join(s.baseDir, sub)
}

// Write replaces the artifact atomically so readers never see a partial file.
// MkdirAll tolerates concurrent first use of the same directory.
func (s *ArtifactStore) Write(kind, fileName, content string) (string, error) {
	dir := s.Dir(kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+fileName+".*")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}

	path := filepath.Join(dir, fileName)
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		return "", fmt.Errorf("chmod artifact: %w", err)
	}

	return path, nil
}

// Artifact file names
func issueArtifact(n int) string {
	return fmt.Sprintf("issue_%d_analysis.md", n)
}

func prArtifact(n int) string {
	return fmt.Sprintf("pr_%d_analysis.md", n)
}

func reviewArtifact(n int, unix int64) string {
	return fmt.Sprintf("review_%d_%d_analysis.md", n, unix)
}

func workflowArtifact(id int64) string {
	return fmt.Sprintf("workflow_%d_analysis.md", id)
}
