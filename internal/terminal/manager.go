package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/creack/pty"
)

var ErrNoSession = errors.New("no active terminal session")

// Manager runs one editor process at a time inside a PTY.
type Manager struct {
	editor string
	onData func(data []byte)
	onExit func(path string)

	mu      sync.Mutex
	ptmx    *os.File
	cmd     *exec.Cmd
	path    string
	running bool
	cols    uint16
	rows    uint16
}

// resolveEditor finds the absolute path of the editor binary, probing the
// usual install locations when PATH is minimal.
func resolveEditor(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	candidates := []string{
		filepath.Join("/usr/local/bin", name),
		filepath.Join("/opt/homebrew/bin", name),
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".local/bin", name))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return name
}

// New creates a manager for editor. onData receives PTY output and onExit the
// path that was being edited once the process ends.
func New(editor string, onData func([]byte), onExit func(path string)) *Manager {
	if editor == "" {
		editor = "nvim"
	}
	return &Manager{
		editor: resolveEditor(editor),
		onData: onData,
		onExit: onExit,
		cols:   80,
		rows:   24,
	}
}

// Editor returns the resolved editor command.
func (m *Manager) Editor() string {
	return m.editor
}

// OpenFile starts the editor on path, closing any running session first.
func (m *Manager) OpenFile(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.closeLocked()
	}

	cmd := exec.Command(m.editor, path)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color", "COLORTERM=truecolor")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: m.cols, Rows: m.rows})
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	m.ptmx = ptmx
	m.cmd = cmd
	m.path = path
	m.running = true

	go m.readLoop(ptmx, cmd, path)
	return nil
}

func (m *Manager) readLoop(ptmx *os.File, cmd *exec.Cmd, path string) {
	buf := make([]byte, 32*1024)
	for {
		n, err := ptmx.Read(buf)
		if n > 0 && m.onData != nil {
			data := make([]byte, n)
			copy(data, buf[:n])
			m.onData(data)
		}
		if err != nil {
			break
		}
	}

	m.mu.Lock()
	current := m.cmd == cmd
	if current {
		m.running = false
		m.cmd = nil
		m.ptmx = nil
		m.path = ""
	}
	m.mu.Unlock()

	if current {
		cmd.Wait()
		ptmx.Close()
	}

	// A session replaced by OpenFile or killed by Close does not report.
	if current && m.onExit != nil {
		m.onExit(path)
	}
}

// Write forwards keystrokes to the PTY.
func (m *Manager) Write(data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.ptmx == nil {
		return ErrNoSession
	}
	_, err := io.WriteString(m.ptmx, data)
	return err
}

// Resize updates the PTY window size. The size is remembered for the next session.
func (m *Manager) Resize(cols, rows uint16) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cols, m.rows = cols, rows
	if !m.running || m.ptmx == nil {
		return nil
	}
	return pty.Setsize(m.ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

// Running returns the file of the active session, if any.
func (m *Manager) Running() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.path, m.running
}

// Close kills the current session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *Manager) closeLocked() {
	if m.ptmx != nil {
		m.ptmx.Close()
		m.ptmx = nil
	}
	if m.cmd != nil && m.cmd.Process != nil {
		m.cmd.Process.Kill()
		m.cmd.Wait()
	}
	m.cmd = nil
	m.path = ""
	m.running = false
}
