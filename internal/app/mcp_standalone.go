package app

import (
	"context"
	"log"

	mcpserver "lyriclab/internal/mcp"
)

// ServeMCP runs the app as a standalone MCP server on stdin/stdout.
// Stdout carries the protocol, so logging must already point elsewhere.
// With a redis URL configured, edits reach clients of a running Serve
// through the event bus.
func (a *App) ServeMCP(ctx context.Context) error {
	mcpSrv := mcpserver.New(ctx, mcpserver.Deps{
		Projects: a.projects,
		Editor:   a.editor,
		Media:    a.media,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpSrv.ServeStdio()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Println("[MCP] interrupted")
		return nil
	}
}
