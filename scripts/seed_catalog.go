package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"courtbook/internal/config"
	"courtbook/internal/database"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		configPath  = flag.String("config", "configs/config.yaml", "path to config.yaml")
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "", "path to sqlite db, overrides config")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	data, err := os.ReadFile(*catalogPath)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var cat config.Catalog
	if err = yaml.Unmarshal(data, &cat); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if len(cat.Courts) == 0 {
		return fmt.Errorf("no courts in catalog")
	}
	if err = cfg.Prepare(&cat); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err = db.SeedCatalog(ctx, cfg.Facilities, cat.Courts, cat.Services, cat.BranchServices); err != nil {
		return err
	}

	fmt.Printf("done: facilities=%d courts=%d services=%d prices=%d\n",
		len(cfg.Facilities), len(cat.Courts), len(cat.Services), len(cat.BranchServices))
	return nil
}
