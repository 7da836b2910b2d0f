// Package uploads manages the panel's uploaded knowledge files: a local
// staging directory plus the matching source on the agent platform.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/quickcall/quickcall/internal/agentapi"
	"github.com/quickcall/quickcall/internal/ctxlog"
)

// ErrTooLarge is returned when an upload exceeds the configured size cap.
var ErrTooLarge = errors.New("uploads: file exceeds the size limit")

// ErrBadName is returned for names that would escape the staging directory.
var ErrBadName = errors.New("uploads: invalid file name")

// ErrNotFound is returned when a file ID is unknown.
var ErrNotFound = errors.New("uploads: file not found")

// PlatformAPI is the slice of the agent-platform client the store uses.
type PlatformAPI interface {
	EnsureSource(ctx context.Context, name string) (*agentapi.Source, error)
	UploadFile(ctx context.Context, sourceID, fileName string, r io.Reader) (*agentapi.File, error)
	ListFiles(ctx context.Context, sourceID string) ([]agentapi.File, error)
	DeleteFile(ctx context.Context, sourceID, fileID string) error
	AttachSource(ctx context.Context, agentID, sourceID string) error
}

// Item is one uploaded file as the panel sees it.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	Staged    bool      `json:"staged"` // a local copy exists
}

// Store keeps uploads on disk and mirrors them into the platform source.
type Store struct {
	dir        string
	maxSize    int64
	sourceName string
	api        PlatformAPI

	mu       sync.Mutex
	sourceID string
}

// New builds a store rooted at dir. The platform source is resolved lazily
// on first use.
func New(dir string, maxSize int64, sourceName string, api PlatformAPI) *Store {
	return &Store{dir: dir, maxSize: maxSize, sourceName: sourceName, api: api}
}

// source resolves and caches the platform source ID.
func (s *Store) source(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sourceID != "" {
		return s.sourceID, nil
	}
	src, err := s.api.EnsureSource(ctx, s.sourceName)
	if err != nil {
		return "", fmt.Errorf("resolve upload source: %w", err)
	}
	s.sourceID = src.ID
	return s.sourceID, nil
}

// sanitizeName reduces a client-supplied name to a safe base name.
func sanitizeName(name string) (string, error) {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", ErrBadName
	}
	if strings.ContainsAny(name, "/\\") {
		return "", ErrBadName
	}
	return name, nil
}

// Save writes the upload to the staging directory and pushes it into the
// platform source. The returned item carries the platform file ID.
func (s *Store) Save(ctx context.Context, name string, r io.Reader) (Item, error) {
	logger := ctxlog.FromContext(ctx)

	name, err := sanitizeName(name)
	if err != nil {
		return Item{}, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Item{}, fmt.Errorf("create staging dir: %w", err)
	}

	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return Item{}, fmt.Errorf("stage %q: %w", name, err)
	}
	// Read one byte past the cap to detect oversize without trusting
	// Content-Length.
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return Item{}, fmt.Errorf("stage %q: %w", name, err)
	}
	if n > s.maxSize {
		_ = os.Remove(path)
		return Item{}, ErrTooLarge
	}
	logger.Debug("Upload staged.", "name", name, "size", n)

	sourceID, err := s.source(ctx)
	if err != nil {
		return Item{}, err
	}
	staged, err := os.Open(path)
	if err != nil {
		return Item{}, fmt.Errorf("reopen staged file: %w", err)
	}
	defer staged.Close()

	file, err := s.api.UploadFile(ctx, sourceID, name, staged)
	if err != nil {
		return Item{}, fmt.Errorf("push %q to platform: %w", name, err)
	}
	logger.Info("Upload pushed to agent platform.", "name", name, "file_id", file.ID)

	return Item{ID: file.ID, Name: name, Size: n, CreatedAt: file.CreatedAt, Staged: true}, nil
}

// List merges the platform's file list with the staging directory. Files
// that exist only locally (a past push failed) appear without an ID.
func (s *Store) List(ctx context.Context) ([]Item, error) {
	sourceID, err := s.source(ctx)
	if err != nil {
		return nil, err
	}
	remote, err := s.api.ListFiles(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("list platform files: %w", err)
	}
	local, err := s.listLocal()
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(remote))
	seen := make(map[string]bool, len(remote))
	for _, f := range remote {
		size := f.FileSize
		if localSize, ok := local[f.FileName]; ok && size == 0 {
			size = localSize
		}
		items = append(items, Item{
			ID:        f.ID,
			Name:      f.FileName,
			Size:      size,
			CreatedAt: f.CreatedAt,
			Staged:    localExists(local, f.FileName),
		})
		seen[f.FileName] = true
	}
	for name, size := range local {
		if !seen[name] {
			items = append(items, Item{Name: name, Size: size, Staged: true})
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

func localExists(local map[string]int64, name string) bool {
	_, ok := local[name]
	return ok
}

// listLocal walks the staging directory and returns name to size.
func (s *Store) listLocal() (map[string]int64, error) {
	files := make(map[string]int64)
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		files[d.Name()] = info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan staging dir: %w", err)
	}
	return files, nil
}

// Delete removes a file from the platform source and the staging copy.
func (s *Store) Delete(ctx context.Context, fileID string) error {
	sourceID, err := s.source(ctx)
	if err != nil {
		return err
	}
	remote, err := s.api.ListFiles(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list platform files: %w", err)
	}
	var name string
	for _, f := range remote {
		if f.ID == fileID {
			name = f.FileName
			break
		}
	}
	if name == "" {
		return ErrNotFound
	}
	if err := s.api.DeleteFile(ctx, sourceID, fileID); err != nil {
		return fmt.Errorf("delete platform file: %w", err)
	}
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged copy of %q: %w", name, err)
	}
	ctxlog.FromContext(ctx).Info("Upload deleted.", "name", name, "file_id", fileID)
	return nil
}

// Attach exposes the upload source to an agent.
func (s *Store) Attach(ctx context.Context, agentID string) error {
	sourceID, err := s.source(ctx)
	if err != nil {
		return err
	}
	return s.api.AttachSource(ctx, agentID, sourceID)
}
