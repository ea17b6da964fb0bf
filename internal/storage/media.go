package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"lyriclab/internal/domain"
)

// ErrInvalidMediaRef is returned for references that would escape the media directory.
var ErrInvalidMediaRef = errors.New("invalid media reference")

// MediaStore keeps audio files under a single directory. A media reference
// is the file name relative to that directory.
type MediaStore struct {
	dir   string
	grace time.Duration
	now   func() time.Time
}

func NewMediaStore(dir string) (*MediaStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create media directory: %w", err)
	}
	return &MediaStore{dir: dir, now: time.Now}, nil
}

// SetPruneGrace makes PruneOrphans keep files modified within d. A take
// being written by another process keeps its modification time fresh.
func (s *MediaStore) SetPruneGrace(d time.Duration) {
	s.grace = d
}

// Dir returns the media root directory.
func (s *MediaStore) Dir() string {
	return s.dir
}

// Allocate reserves a fresh reference with the given extension and returns
// it with the absolute path to write to.
func (s *MediaStore) Allocate(ext string) (ref, path string) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		ext = "wav"
	}
	ref = domain.NewID() + "." + ext
	return ref, filepath.Join(s.dir, ref)
}

// Path resolves a reference to an absolute path inside the media directory.
func (s *MediaStore) Path(ref string) (string, error) {
	if ref == "" || ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidMediaRef, ref)
	}
	return filepath.Join(s.dir, ref), nil
}

func (s *MediaStore) Exists(ref string) bool {
	p, err := s.Path(ref)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Remove deletes a media file. Missing files are not an error.
func (s *MediaStore) Remove(ref string) error {
	p, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove media %s: %w", ref, err)
	}
	return nil
}

// List returns all stored references, sorted.
func (s *MediaStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read media directory: %w", err)
	}
	var refs []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		refs = append(refs, e.Name())
	}
	sort.Strings(refs)
	return refs, nil
}

// PruneOrphans deletes every file whose reference is not in keep and that
// is older than the prune grace, and returns the removed references.
func (s *MediaStore) PruneOrphans(keep map[string]struct{}) ([]string, error) {
	refs, err := s.List()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, ref := range refs {
		if _, ok := keep[ref]; ok {
			continue
		}
		if s.recent(ref) {
			continue
		}
		if err := s.Remove(ref); err != nil {
			return removed, err
		}
		removed = append(removed, ref)
	}
	return removed, nil
}

func (s *MediaStore) recent(ref string) bool {
	if s.grace <= 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(s.dir, ref))
	if err != nil {
		return false
	}
	return s.now().Sub(info.ModTime()) < s.grace
}
