package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/paperless-pdf-meta/internal/backfill"
	"github.com/a3tai/paperless-pdf-meta/internal/config"
	"github.com/a3tai/paperless-pdf-meta/internal/mcp"
	"github.com/a3tai/paperless-pdf-meta/internal/paperless"
	"github.com/a3tai/paperless-pdf-meta/internal/pdf"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging configures logging based on the run mode. Paperless captures
// the stderr of post-consume scripts, so everything goes there.
func setupLogging(cfg *config.Config) {
	log.SetOutput(os.Stderr)

	if cfg.IsStdioMode() {
		// Stay quiet unless debugging so the client only sees protocol traffic
		if !cfg.IsDebug() {
			log.SetOutput(io.Discard)
		}
		return
	}

	if cfg.IsDebug() {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

// newClient builds the Paperless API client from the configuration
func newClient(cfg *config.Config) *paperless.Client {
	opts := []paperless.Option{paperless.WithTimeout(cfg.Timeout)}
	if cfg.Token != "" {
		opts = append(opts, paperless.WithToken(cfg.Token))
	} else if cfg.Username != "" {
		opts = append(opts, paperless.WithBasicAuth(cfg.Username, cfg.Password))
	}
	return paperless.NewClient(cfg.APIURL, opts...)
}

// runHook backfills the single document Paperless handed over
func runHook(ctx context.Context, cfg *config.Config, api backfill.DocumentAPI) error {
	extractor := pdf.NewExtractor(cfg.MaxFileSize, cfg.ValidateStructure)

	synchronizer, err := backfill.NewSynchronizer(extractor, api, backfill.Options{
		DryRun: cfg.DryRun,
		Debug:  cfg.IsDebug(),
	})
	if err != nil {
		return err
	}

	result, err := synchronizer.Run(ctx, cfg.DocumentID, cfg.SourcePath)
	if err != nil {
		return fmt.Errorf("document %s: %w", cfg.DocumentID, err)
	}

	if result.Skipped != backfill.SkipNone && cfg.IsDebug() {
		log.Printf("document %s: finished without writing (%s)", cfg.DocumentID, result.Skipped)
	}
	return nil
}

// runStdioMode serves the MCP tools until the client disconnects
func runStdioMode(ctx context.Context, cfg *config.Config, api backfill.DocumentAPI) error {
	extractor := pdf.NewExtractor(cfg.MaxFileSize, cfg.ValidateStructure)

	server, err := mcp.NewServer(cfg, extractor, api)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	return server.Run(ctx)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := newClient(cfg)

	if cfg.IsStdioMode() {
		if err := runStdioMode(ctx, cfg, api); err != nil {
			log.Printf("Server error: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := runHook(ctx, cfg, api); err != nil {
		stop()
		log.Fatalf("Failed to backfill metadata: %v", err)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("Paperless PDF metadata\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
