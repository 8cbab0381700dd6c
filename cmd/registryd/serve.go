package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clinicalregistry/barnreg/rest"
	"github.com/clinicalregistry/barnreg/schema"
	"github.com/clinicalregistry/barnreg/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registry's REST server",
		RunE: func(cmd *cobra.Command, args []string) error {
			storeDir, _ := cmd.Flags().GetString("store-dir")
			listenAddr, _ := cmd.Flags().GetString("listen-addr")
			schemaFile, _ := cmd.Flags().GetString("schema-file")
			searchParamsFile, _ := cmd.Flags().GetString("search-params-file")
			defaultHandling, _ := cmd.Flags().GetString("default-handling")

			v := newViper()
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			// explicit flags take precedence over the layered env/file config.
			if cmd.Flags().Changed("store-dir") {
				cfg.StoreDir = storeDir
			}
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("schema-file") {
				cfg.SchemaFile = schemaFile
			}
			if cmd.Flags().Changed("search-params-file") {
				cfg.SearchParamFile = searchParamsFile
			}
			if cmd.Flags().Changed("default-handling") {
				cfg.DefaultHandling = defaultHandling
			}
			if err := cfg.validate(); err != nil {
				return err
			}

			return runServe(cfg)
		},
	}
	cmd.Flags().String("store-dir", "", "Directory for the Badger-backed store (default ./data)")
	cmd.Flags().String("listen-addr", "", "HTTP listen address (default :8080)")
	cmd.Flags().String("schema-file", "", "Path to the resource-shape JSON Schema document")
	cmd.Flags().String("search-params-file", "", "Path to the search-parameter definitions JSON document")
	cmd.Flags().String("default-handling", "", "Default Prefer: handling (strict or lenient)")
	return cmd
}

func runServe(cfg *config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	if cfg.SchemaFile == "" {
		return fmt.Errorf("--schema-file (or SCHEMA_FILE) is required")
	}
	schemaJSON, err := os.ReadFile(cfg.SchemaFile)
	if err != nil {
		return fmt.Errorf("reading schema file: %w", err)
	}
	var searchParamsJSON []byte
	if cfg.SearchParamFile != "" {
		searchParamsJSON, err = os.ReadFile(cfg.SearchParamFile)
		if err != nil {
			return fmt.Errorf("reading search-parameters file: %w", err)
		}
	}

	sd, err := schema.Load(schemaJSON, searchParamsJSON)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	logger.Info("schema loaded", "resourceTypes", len(sd.Resources), "searchParams", len(sd.SearchParams))

	st, err := store.Open(cfg.StoreDir, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	server := &rest.Server{
		Store:           st,
		Schema:          sd,
		Log:             logger,
		DefaultHandling: cfg.DefaultHandling,
		Now:             func() time.Time { return time.Now().In(loc) },
	}

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server,
	}

	go func() {
		logger.Info("starting server", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
