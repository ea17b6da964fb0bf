package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"lyriclab/internal/app"
	"lyriclab/internal/config"
)

var (
	Version = "dev"

	envFile string
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "lyriclab",
	Short: "Songwriting workspace: lyrics with inline audio takes",
	Long: `LyricLab keeps song projects whose lyrics mix text blocks with
recorded audio blocks. Run "serve" for the HTTP/WebSocket editor API or
"mcp" to expose the projects to AI agents over stdio.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), "server", func(ctx context.Context, a *app.App) error {
			return a.Serve(ctx)
		})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP server on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), "mcp", func(ctx context.Context, a *app.App) error {
			return a.ServeMCP(ctx)
		})
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Trim edit history and delete unreferenced audio files",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context(), "prune", func(ctx context.Context, a *app.App) error {
			_, err := a.Prune(ctx)
			return err
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env",
		"Environment file loaded before reading LYRICLAB_* variables")
	rootCmd.PersistentFlags().StringVarP(&logFile, "log", "l", "",
		"Write logs to the given file (overrides LYRICLAB_LOG_FILE)")
	rootCmd.AddCommand(serveCmd, mcpCmd, pruneCmd)
}

// run loads configuration, sets up logging and hands a ready App to fn.
func run(ctx context.Context, origin string, fn func(context.Context, *app.App) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	closer, err := config.SetupLogging(cfg.LogFile)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	a, err := app.New(ctx, cfg, origin)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("[app] close: %v", err)
		}
	}()
	return fn(ctx, a)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}
