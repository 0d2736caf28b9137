// Package logstore persists finished execution logs as one pretty-printed
// JSON file per execution, named <execution id>.json.
package logstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/loykin/servcur/internal/domain"
	"github.com/spf13/afero"
)

const fileExt = ".json"

// Entry describes one persisted log file.
type Entry struct {
	ID      domain.ExecutionID `json:"id"`
	File    string             `json:"file"`
	Size    int64              `json:"size"`
	ModTime time.Time          `json:"mod_time"`
}

// Store reads and writes IoLog files inside a single directory.
type Store struct {
	fs  afero.Fs
	dir string
}

// New creates dir if needed.
func New(fsys afero.Fs, dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("log directory cannot be empty")
	}
	if err := fsys.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return &Store{fs: fsys, dir: dir}, nil
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id domain.ExecutionID) string {
	return filepath.Join(s.dir, id.String()+fileExt)
}

// Write serializes log to <id>.json, replacing any previous content.
func (s *Store) Write(id domain.ExecutionID, log *domain.IoLog) (string, error) {
	if _, err := domain.ParseExecutionID(id.String()); err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode log %s: %w", id, err)
	}
	p := s.path(id)
	if err := afero.WriteFile(s.fs, p, b, 0o640); err != nil {
		return "", fmt.Errorf("write log %s: %w", id, err)
	}
	return p, nil
}

// ReadRaw returns the file contents unparsed.
func (s *Store) ReadRaw(id domain.ExecutionID) ([]byte, error) {
	if _, err := domain.ParseExecutionID(id.String()); err != nil {
		return nil, err
	}
	b, err := afero.ReadFile(s.fs, s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: log %s", domain.ErrNotFound, id)
		}
		return nil, err
	}
	return b, nil
}

// Read decodes the log for id.
func (s *Store) Read(id domain.ExecutionID) (*domain.IoLog, error) {
	b, err := s.ReadRaw(id)
	if err != nil {
		return nil, err
	}
	var log domain.IoLog
	if err := json.Unmarshal(b, &log); err != nil {
		return nil, fmt.Errorf("decode log %s: %w", id, err)
	}
	return &log, nil
}

// List enumerates persisted logs, oldest execution first. Files whose name
// is not an execution id are ignored.
func (s *Store) List() ([]Entry, error) {
	infos, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	out := make([]Entry, 0, len(infos))
	for _, fi := range infos {
		name := fi.Name()
		if fi.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		id, err := domain.ParseExecutionID(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		out = append(out, Entry{ID: id, File: name, Size: fi.Size(), ModTime: fi.ModTime()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
