package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/observability"
	"github.com/ayusman/mudra/internal/store"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{"record", "capture labelled samples from the camera", runRecord},
	{"extract", "turn folders of images into samples", runExtract},
	{"split", "copy the dataset into train and val partitions", runSplit},
	{"train", "build a template model from the dataset", runTrain},
	{"live", "recognise signs from the camera", runLive},
	{"labels", "print the label list and sample counts", runLabels},
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: mudra <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "Settings are read from %s_* environment variables and .env.\n", config.Prefix)
	fmt.Fprintln(os.Stderr, "Run 'mudra <command> -h' for command flags.")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	name, args := os.Args[1], os.Args[2:]
	if name == "-h" || name == "--help" || name == "help" {
		usage()
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(os.Stderr, "mudra: unknown command %q\n\n", name)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.run(ctx, cfg, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error().Err(err).Str("command", name).Msg("command failed")
		stop()
		os.Exit(1)
	}
}

// parseFlags parses args and revalidates cfg after flag overrides.
func parseFlags(fs *flag.FlagSet, cfg *config.Config, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	cfg.Normalize()
	return cfg.Validate()
}

// datasetRoot resolves the dataset directory. Relative paths are under
// the data directory.
func datasetRoot(cfg *config.Config) string {
	if filepath.IsAbs(cfg.DatasetDir) {
		return cfg.DatasetDir
	}
	return filepath.Join(cfg.DataDir, cfg.DatasetDir)
}

// openStore opens the catalog database, creating the data directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func openDataset(cfg *config.Config, window int) *dataset.Store {
	return dataset.New(datasetRoot(cfg), window)
}
