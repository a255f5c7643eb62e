package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"newsharvest/internal/config"
	"newsharvest/internal/crawler"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "Path to harvester configuration file")
	query := flag.String("query", "", "Override harvest.query")
	pages := flag.Int("pages", 0, "Override harvest.max_pages")
	hours := flag.Int("hours", 0, "Override harvest.hours_limit")
	concurrency := flag.Int("concurrency", 0, "Override harvest.concurrency")
	categories := flag.String("categories", "", "Comma-separated allowed categories (overrides config)")
	withStats := flag.Bool("stats", false, "Emit a final stats line after the records")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *query, *pages, *hours, *concurrency, *categories)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Records go to stdout, so logs stay on stderr.
	logger, err := crawler.NewLogger(cfg.Logging, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}

	harvester, err := crawler.NewFromConfig(*cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise harvester: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	res, err := harvester.Harvest(ctx, crawler.RequestFromConfig(*cfg))
	if err != nil {
		if errors.Is(err, crawler.ErrFirstPage) {
			fmt.Fprintf(os.Stderr, "listing unavailable: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "harvest stopped with error: %v\n", err)
		}
		os.Exit(1)
	}

	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)
	for _, rec := range res.Records {
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(os.Stderr, "write record: %v\n", err)
			os.Exit(1)
		}
	}
	if *withStats {
		_ = enc.Encode(struct {
			RunID string        `json:"run_id"`
			Stats crawler.Stats `json:"stats"`
		}{res.RunID, res.Stats})
	}
	if err := out.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush output: %v\n", err)
		os.Exit(1)
	}
}

func applyOverrides(cfg *config.Config, query string, pages, hours, concurrency int, categories string) {
	if q := strings.TrimSpace(query); q != "" {
		cfg.Harvest.Query = q
	}
	if pages > 0 {
		cfg.Harvest.MaxPages = pages
	}
	if hours > 0 {
		cfg.Harvest.HoursLimit = hours
	}
	if concurrency > 0 {
		cfg.Harvest.Concurrency = concurrency
	}
	if strings.TrimSpace(categories) != "" {
		var list []string
		for _, c := range strings.Split(categories, ",") {
			if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
				list = append(list, c)
			}
		}
		cfg.Harvest.AllowedCategories = list
	}
}
