package extedit

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Target identifies the text block a file mirrors.
type Target struct {
	ProjectID string
	BlockID   string
}

// ChangeHandler is called with the new content whenever a watched file is written.
type ChangeHandler func(t Target, content string)

// Bridge mirrors text blocks to files under a root directory and reports
// writes made to those files by an external editor.
type Bridge struct {
	root     string
	watcher  *fsnotify.Watcher
	onChange ChangeHandler

	mu       sync.RWMutex
	watching map[string]Target // abs path -> block
	last     map[string]string // abs path -> last content seen
	dirs     map[string]int    // watched dir -> files in it
}

func New(root string, onChange ChangeHandler) (*Bridge, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	b := &Bridge{
		root:     root,
		watcher:  watcher,
		onChange: onChange,
		watching: make(map[string]Target),
		last:     make(map[string]string),
		dirs:     make(map[string]int),
	}
	go b.watchLoop()
	return b, nil
}

// PathFor returns the file a block is exported to: <root>/<project>/<block>.txt.
func (b *Bridge) PathFor(t Target) string {
	return filepath.Join(b.root, filepath.Base(t.ProjectID), filepath.Base(t.BlockID)+".txt")
}

// Export writes content to the block's file and starts watching it.
func (b *Bridge) Export(t Target, content string) (string, error) {
	path, err := filepath.Abs(b.PathFor(t))
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create edit dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write edit file: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watching[path]; !ok {
		if b.dirs[dir] == 0 {
			// fsnotify watches directories, editors often replace the file on save.
			if err := b.watcher.Add(dir); err != nil {
				return "", fmt.Errorf("watch %s: %w", dir, err)
			}
		}
		b.dirs[dir]++
	}
	b.watching[path] = t
	b.last[path] = content
	return path, nil
}

// Read returns the current content of the block's file.
func (b *Bridge) Read(t Target) (string, error) {
	data, err := os.ReadFile(b.PathFor(t))
	if err != nil {
		return "", err
	}
	return normalize(string(data)), nil
}

// Release stops watching the block's file and deletes it.
func (b *Bridge) Release(t Target) {
	path, err := filepath.Abs(b.PathFor(t))
	if err != nil {
		return
	}
	dir := filepath.Dir(path)

	b.mu.Lock()
	if _, ok := b.watching[path]; ok {
		delete(b.watching, path)
		delete(b.last, path)
		b.dirs[dir]--
		if b.dirs[dir] <= 0 {
			delete(b.dirs, dir)
			_ = b.watcher.Remove(dir)
		}
	}
	b.mu.Unlock()

	_ = os.Remove(path)
}

// Watching reports whether the block is currently exported.
func (b *Bridge) Watching(t Target) bool {
	path, err := filepath.Abs(b.PathFor(t))
	if err != nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.watching[path]
	return ok
}

func (b *Bridge) Close() error {
	return b.watcher.Close()
}

func (b *Bridge) watchLoop() {
	for {
		select {
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			b.handle(event.Name)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[extedit] watcher error: %v", err)
		}
	}
}

func (b *Bridge) handle(name string) {
	path, _ := filepath.Abs(name)
	b.mu.RLock()
	t, watched := b.watching[path]
	b.mu.RUnlock()
	if !watched {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[extedit] read %s: %v", path, err)
		return
	}
	content := normalize(string(data))

	b.mu.Lock()
	if b.last[path] == content {
		b.mu.Unlock()
		return
	}
	b.last[path] = content
	b.mu.Unlock()

	if b.onChange != nil {
		b.onChange(t, content)
	}
}

// normalize drops the single trailing newline most editors append on save.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSuffix(s, "\n")
}
