package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"murmur/config"
	"murmur/learning"
	"murmur/memory"
	"murmur/transcriber"
)

const compactTimeout = 2 * time.Minute

const memoryUsage = "Usage: murmur memory [-config path] show|compact|clear"

// runMemory implements "murmur memory ...". It returns the exit code.
func runMemory(args []string) int {
	fs := flag.NewFlagSet("memory", flag.ContinueOnError)
	configFlag := fs.String("config", "", "settings file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, memoryUsage)
		return 2
	}

	path, err := resolveSettingsPath(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	settings, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	store, err := openMemory(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	analyzer := func(ctx context.Context) (learning.Analyzer, error) {
		if err := settings.RequireCredentials(); err != nil {
			return nil, err
		}
		return transcriber.NewGemini(ctx, settings.TranscriberConfig())
	}

	ctx, cancel := context.WithTimeout(context.Background(), compactTimeout)
	defer cancel()
	if err := memoryCommand(ctx, os.Stdout, store, analyzer, fs.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func memoryCommand(ctx context.Context, w io.Writer, store *memory.Store, analyzer func(context.Context) (learning.Analyzer, error), cmd string) error {
	switch cmd {
	case "show":
		doc, err := store.Load()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, doc.JSON())
		fmt.Fprintf(w, "\n%s: ~%d tokens (budget %d)\n", store.Path(), memory.EstimateTokens(doc), memory.TokenBudget)
		return nil

	case "compact":
		a, err := analyzer(ctx)
		if err != nil {
			return err
		}
		if err := store.Acquire(ctx); err != nil {
			return err
		}
		defer store.Release()
		doc, err := store.Load()
		if err != nil {
			return err
		}
		before := memory.EstimateTokens(doc)
		compacted, err := learning.Compact(ctx, store, a, doc)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "compacted: ~%d -> ~%d tokens\n", before, memory.EstimateTokens(compacted))
		return nil

	case "clear":
		if err := store.Acquire(ctx); err != nil {
			return err
		}
		defer store.Release()
		if err := store.Save(memory.Document{}); err != nil {
			return err
		}
		fmt.Fprintf(w, "cleared %s\n", store.Path())
		return nil
	}
	return fmt.Errorf("unknown memory command %q\n%s", cmd, memoryUsage)
}
