package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JSONManager handles reading and writing JSON data to a file. Writes go
// to a temporary file that is renamed over the target.
type JSONManager struct {
	filePath    string
	projectRoot string // Optional: for safe saving
	mu          sync.RWMutex
}

// NewJSONManager creates a new JSONManager.
func NewJSONManager(filePath string) *JSONManager {
	return &JSONManager{
		filePath: filePath,
	}
}

// WithProjectRoot confines saves to projectRoot.
func (m *JSONManager) WithProjectRoot(projectRoot string) *JSONManager {
	m.projectRoot = projectRoot
	return m
}

// Path returns the managed file path.
func (m *JSONManager) Path() string { return m.filePath }

// Load unmarshals the file into data. found is false, with a nil error,
// when the file does not exist.
func (m *JSONManager) Load(data any) (found bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fileData, err := os.ReadFile(m.filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read file: %w", err)
	}

	if err := json.Unmarshal(fileData, data); err != nil {
		return true, fmt.Errorf("failed to unmarshal json: %w", err)
	}
	return true, nil
}

// Save marshals data and atomically replaces the file.
func (m *JSONManager) Save(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	fileData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal json: %w", err)
	}

	dir := filepath.Dir(m.filePath)
	if m.projectRoot != "" {
		if _, err := safeJoin(m.projectRoot, m.filePath); err != nil {
			return fmt.Errorf("failed to resolve safe directory: %w", err)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(m.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(append(fileData, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, m.filePath); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// safeJoin ensures that path resolves inside baseDir.
func safeJoin(baseDir, path string) (string, error) {
	cleanBase, err := filepath.Abs(filepath.Clean(baseDir))
	if err != nil {
		return "", err
	}
	cleanPath := path
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(cleanBase, path)
	}
	cleanPath = filepath.Clean(cleanPath)
	rel, err := filepath.Rel(cleanBase, cleanPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: %s", path)
	}
	return cleanPath, nil
}
