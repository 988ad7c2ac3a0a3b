package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ghodss/yaml"
	"golang.org/x/sync/errgroup"

	"github.com/pomeroyr/amphtml/cmd/config"
	"github.com/pomeroyr/amphtml/lib/analytics"
	"github.com/pomeroyr/amphtml/lib/logger"
)

// document is the shape of an analytics configuration file: a map of named
// trigger specs, YAML or JSON.
type document struct {
	Triggers map[string]*analytics.TriggerConfig `json:"triggers"`
}

func main() {
	slogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	// Load configuration from environment variables
	config, err := config.Load()
	if err != nil {
		slogger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	level, err := config.SlogLevel()
	if err != nil {
		slogger.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	slogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	paths := os.Args[1:]
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "usage: triggerlint <config.yaml|config.json> ...")
		os.Exit(2)
	}

	ctx := logger.AddToContext(context.Background(), slogger)
	if err := run(ctx, paths, config.Strict); err != nil {
		slogger.Error("lint failed", "err", err)
		os.Exit(1)
	}
	slogger.Info("all documents valid", "documents", len(paths))
}

func run(ctx context.Context, paths []string, strict bool) error {
	eg, ctx := errgroup.WithContext(ctx)
	for _, path := range paths {
		path := path
		eg.Go(func() error {
			return lintFile(ctx, path, strict)
		})
	}
	return eg.Wait()
}

func lintFile(ctx context.Context, path string, strict bool) error {
	log := logger.FromContext(ctx)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	// YAML is a superset of JSON here, so one decode path covers both.
	jsonData, err := yaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("%s: parse: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}

	if strict && len(doc.Triggers) == 0 {
		return fmt.Errorf("%s: document declares no triggers", path)
	}

	failed := 0
	for name, trigger := range doc.Triggers {
		if trigger == nil {
			log.Error("empty trigger spec", "file", path, "trigger", name)
			failed++
			continue
		}
		if err := analytics.ValidateTrigger(trigger); err != nil {
			log.Error("invalid trigger", "file", path, "trigger", name, "on", trigger.On, "err", err)
			failed++
			continue
		}
		log.Debug("trigger ok", "file", path, "trigger", name, "on", trigger.On)
	}
	if failed > 0 {
		return fmt.Errorf("%s: %d invalid trigger(s)", path, failed)
	}
	return nil
}
