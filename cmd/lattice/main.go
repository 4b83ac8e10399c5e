// Package main is the Lattice CLI: it extracts a chat export, sorts it into
// per-conversation folders, stores those folders into the coordinate space,
// and restores stored conversations as a plain dump or an interactive viewer.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/entrhq/lattice/pkg/archive"
	"github.com/entrhq/lattice/pkg/block"
	"github.com/entrhq/lattice/pkg/config"
	"github.com/entrhq/lattice/pkg/coordinate"
	"github.com/entrhq/lattice/pkg/extract"
	"github.com/entrhq/lattice/pkg/index"
	"github.com/entrhq/lattice/pkg/logging"
	"github.com/entrhq/lattice/pkg/playback"
	"github.com/entrhq/lattice/pkg/restore"
	"github.com/entrhq/lattice/pkg/sorter"
	"github.com/entrhq/lattice/pkg/store"
)

const version = "0.1.0"

// CLIConfig holds command-line configuration.
type CLIConfig struct {
	ConfigFile  string
	Mode        string
	Append      bool
	Query       string
	View        string
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("Lattice v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *CLIConfig {
	cli := &CLIConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.Mode, "mode", "", "Mode: extract, sort, store, restore (prompts when omitted)")
	flag.BoolVar(&cli.Append, "append", false, "Store mode: append to the existing space instead of assuming a fresh one")
	flag.StringVar(&cli.Query, "query", "", "Restore mode: conversation to look up (substring of key, id, or title)")
	flag.StringVar(&cli.View, "view", "", "Restore mode: a = dump all, s = step interactively (default from config)")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Lattice - coordinate-addressed conversation archive\n\n")
		fmt.Fprintf(os.Stderr, "Usage: lattice [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Pull conversations.json/assets.json out of chat.html\n")
		fmt.Fprintf(os.Stderr, "  lattice -mode extract\n\n")
		fmt.Fprintf(os.Stderr, "  # Sort the export into per-conversation folders\n")
		fmt.Fprintf(os.Stderr, "  lattice -mode sort\n\n")
		fmt.Fprintf(os.Stderr, "  # Store new conversations after the existing ones\n")
		fmt.Fprintf(os.Stderr, "  lattice -mode store -append\n\n")
		fmt.Fprintf(os.Stderr, "  # Replay a conversation interactively\n")
		fmt.Fprintf(os.Stderr, "  lattice -mode restore -query wave -view s\n\n")
	}

	flag.Parse()
	return cli
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return err
	}

	logger, logErr := logging.NewLogger("lattice")
	if logErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: file logging unavailable: %v\n", logErr)
	}
	defer logger.Close()

	mode := cli.Mode
	if mode == "" {
		mode, err = promptMode(cli)
		if err != nil {
			return err
		}
	}

	switch mode {
	case "extract":
		return runExtract(ctx, cfg, logger)
	case "sort":
		return runSort(ctx, cfg, logger)
	case "store":
		return runStore(ctx, cfg, cli, logger)
	case "restore":
		return runRestore(cfg, cli, logger)
	default:
		return fmt.Errorf("unknown mode %q (want extract, sort, store, or restore)", mode)
	}
}

// promptMode shows a numbered menu when no -mode flag was given and fills in
// the sub-mode flags from the selection.
func promptMode(cli *CLIConfig) (string, error) {
	fmt.Println("Lattice modes:")
	fmt.Println("  [1] extract  - read chat.html into conversations.json / assets.json")
	fmt.Println("  [2] sort     - split the export into per-conversation folders")
	fmt.Println("  [3] store    - archive sorted folders into a fresh coordinate space")
	fmt.Println("  [4] store    - append new conversations to the existing space")
	fmt.Println("  [5] restore  - dump a stored conversation")
	fmt.Println("  [6] restore  - step through a stored conversation")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("choose 1-6: ")
		if !scanner.Scan() {
			return "", fmt.Errorf("no mode selected")
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "1":
			return "extract", nil
		case "2":
			return "sort", nil
		case "3":
			return "store", nil
		case "4":
			cli.Append = true
			return "store", nil
		case "5":
			cli.View = "a"
			return "restore", nil
		case "6":
			cli.View = "s"
			return "restore", nil
		}
		fmt.Println("invalid selection")
	}
}

func runExtract(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	if err := extract.New(cfg.ExportDir, logger).Run(ctx); err != nil {
		return err
	}
	fmt.Printf("Extracted %s into conversations.json and assets.json\n", cfg.ExportDir)
	return nil
}

func runSort(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	patterns, err := cfg.CompilePatterns()
	if err != nil {
		return err
	}
	stats, err := sorter.New(cfg.ExportDir, cfg.SortedDir, patterns, logger).Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Sorted: %d added, %d updated, %d skipped, %d errors\n",
		stats.Added, stats.Updated, stats.Skipped, len(stats.Errors))
	for _, title := range stats.Errors {
		fmt.Printf("  failed: %s\n", title)
	}
	return nil
}

func runStore(ctx context.Context, cfg *config.Config, cli *CLIConfig, logger *logging.Logger) error {
	counter, err := block.NewTokenCounter()
	if err != nil {
		logger.Warnf("tokenizer unavailable, storing without token counts: %v", err)
		counter = nil
	}

	a, err := archive.New(archive.Options{
		CursorPath: cfg.CursorPath(),
		BlocksDir:  cfg.BlocksDir(),
		IndexPath:  cfg.IndexPath(),
		Order:      index.Order(cfg.LookupOrder),
		Counter:    counter,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	mode := archive.ModeFresh
	if cli.Append {
		mode = archive.ModeAppend
	}

	stats, err := a.StoreAll(ctx, cfg.SortedDir, mode)
	if errors.Is(err, coordinate.ErrSpaceExhausted) {
		fmt.Printf("Stored %d conversations (%d blocks) before the address space ran out.\n",
			stats.Stored, stats.Blocks)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Printf("Stored: %d conversations (%d blocks), %d skipped, %d failed\n",
		stats.Stored, stats.Blocks, stats.Skipped, len(stats.Failed))
	for _, key := range stats.Failed {
		fmt.Printf("  failed: %s\n", key)
	}
	return nil
}

func runRestore(cfg *config.Config, cli *CLIConfig, logger *logging.Logger) error {
	idx, err := index.Load(cfg.IndexPath(), index.Order(cfg.LookupOrder))
	if err != nil {
		return err
	}
	writer, err := store.NewWriter(cfg.BlocksDir())
	if err != nil {
		return err
	}
	player := playback.New(idx, writer, logger)

	view := cli.View
	if view == "" {
		view = cfg.Playback
	}

	switch view {
	case "a":
		entry, err := player.Resolve(cli.Query, os.Stdin, os.Stdout)
		if err != nil {
			return restoreError(err, cli.Query)
		}
		if err := player.Dump(os.Stdout, entry); err != nil {
			return restoreError(err, cli.Query)
		}
		return nil
	case "s":
		entry, err := player.ResolveInteractive(cli.Query)
		if err != nil {
			return restoreError(err, cli.Query)
		}
		if err := player.Step(entry); err != nil {
			return restoreError(err, cli.Query)
		}
		return nil
	default:
		return fmt.Errorf("unknown view %q (want a or s)", view)
	}
}

// restoreError turns the restore error taxonomy into user-facing messages,
// keeping not-found distinct from a damaged store.
func restoreError(err error, query string) error {
	switch {
	case errors.Is(err, playback.ErrNotFound):
		return fmt.Errorf("no stored conversation matches %q", query)
	case errors.Is(err, restore.ErrTruncated):
		return fmt.Errorf("conversation is stored but its chain is damaged: %w", err)
	case errors.Is(err, playback.ErrNoSelection):
		return fmt.Errorf("no conversation selected")
	default:
		return err
	}
}
