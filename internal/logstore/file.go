package logstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps one directory per session: meta.json, output.log, and a
// child-<tool_use_id>.log per async sub-agent stream.
type FileStore struct {
	root string

	mu    sync.Mutex
	files map[string]*os.File // open appenders, keyed by path
}

// NewFileStore creates a file-backed store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &FileStore{
		root:  dir,
		files: make(map[string]*os.File),
	}, nil
}

func (s *FileStore) sessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// SaveMeta writes meta.json for the session, creating its directory.
func (s *FileStore) SaveMeta(meta *Meta) error {
	dir := s.sessionDir(meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), append(data, '\n'), 0644)
}

// LoadMeta reads meta.json for the session.
func (s *FileStore) LoadMeta(sessionID string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), "meta.json"))
	if err != nil {
		return nil, err
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Append adds one line to the session's primary log.
func (s *FileStore) Append(sessionID, line string) error {
	return s.appendLine(filepath.Join(s.sessionDir(sessionID), "output.log"), line)
}

// AppendChild adds one line to the per-child log of an async sub-agent.
func (s *FileStore) AppendChild(sessionID, toolUseID, line string) error {
	name := fmt.Sprintf("child-%s.log", toolUseID)
	return s.appendLine(filepath.Join(s.sessionDir(sessionID), name), line)
}

func (s *FileStore) appendLine(path, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[path]
	if !ok {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		s.files[path] = f
	}
	_, err := f.WriteString(line + "\n")
	return err
}

// ReadAll returns the session's primary log lines for replay.
func (s *FileStore) ReadAll(sessionID string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.sessionDir(sessionID), "output.log"))
	if err != nil {
		return nil, err
	}
	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// List returns the ids of sessions that have persisted metadata.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), "meta.json")); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Close closes all open log appenders.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for path, f := range s.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.files, path)
	}
	return firstErr
}
