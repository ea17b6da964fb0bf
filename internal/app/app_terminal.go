package app

import (
	"fmt"
	"log"

	"lyriclab/internal/extedit"
	"lyriclab/internal/service"
	"lyriclab/internal/terminal"
)

// ============================================================
// External editor (file bridge + embedded terminal)
// ============================================================

// externalEdit bundles the pieces of the external editing flow so they can
// be closed together.
type externalEdit struct {
	svc    *service.ExternalEditService
	bridge *extedit.Bridge
	term   *terminal.Manager
}

// newExternalEdit wires the fsnotify bridge and the PTY manager to the
// external edit service. Bridge writes and editor exits call back into the
// service, which is created first with no collaborators attached.
func (a *App) newExternalEdit() (*externalEdit, error) {
	svc := service.NewExternalEditService(a.editor, nil, nil, a.emitter)

	bridge, err := extedit.New(a.cfg.EditDir(), svc.OnFileChanged)
	if err != nil {
		return nil, fmt.Errorf("external edit bridge: %w", err)
	}
	svc.SetBridge(bridge)

	term := terminal.New(a.cfg.Editor, svc.OnTerminalData, svc.OnTerminalExit)
	svc.SetTerminal(term)
	log.Printf("[app] external editor %s, files under %s", term.Editor(), a.cfg.EditDir())

	return &externalEdit{svc: svc, bridge: bridge, term: term}, nil
}

func (e *externalEdit) Close() {
	e.term.Close()
	if err := e.bridge.Close(); err != nil {
		log.Printf("[app] close edit bridge: %v", err)
	}
}
