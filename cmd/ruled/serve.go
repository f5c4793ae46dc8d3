package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/diazhh/petroedge-sub001/internal/api"
	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/config"
	"github.com/diazhh/petroedge-sub001/internal/engine"
	"github.com/diazhh/petroedge-sub001/internal/events"
	"github.com/diazhh/petroedge-sub001/internal/node"
	"github.com/diazhh/petroedge-sub001/internal/node/builtin"
	"github.com/diazhh/petroedge-sub001/internal/observability"
	"github.com/diazhh/petroedge-sub001/internal/store"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the rule engine HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.Log, os.Stderr)

	services, _, _, _, _ := builtin.MemoryServices()
	services.Logger = logger
	holder := &builtin.InvokerHolder{}
	services.Chains = holder

	registry := node.NewRegistry()
	if err := builtin.Register(registry, services); err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer closeStore()

	bus := events.NewBus(events.WithLogger(logger))
	eng := engine.New(st, registry,
		engine.WithLogger(logger),
		engine.WithTracer(observability.Tracer("ruled")),
		engine.WithEventBus(bus),
		engine.WithCacheTTL(cfg.Engine.CacheTTL()),
		engine.WithDefaultTimeout(cfg.Engine.DefaultTimeout()),
	)
	holder.Set(eng)

	if err := seedTenants(ctx, cfg, st, logger); err != nil {
		return err
	}
	if err := loadChainDir(ctx, cfg.Seed.ChainsDir, st, chain.NewValidator(registry), logger); err != nil {
		return err
	}
	for _, tenant := range cfg.Seed.Tenants {
		eng.RunStartupChains(ctx, tenant)
	}

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: api.NewServer(eng, registry, logger).Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("rule engine listening", "addr", cfg.Server.Addr, "store", cfg.Database.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete", "error", err)
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.Warn("executions still in flight at shutdown", "error", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, registry *node.Registry) (store.ChainStore, func(), error) {
	validator := chain.NewValidator(registry)
	switch cfg.Database.Driver {
	case "postgres":
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return nil, nil, types.WrapError(types.STORE_OPEN_FAILED, "open postgres", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, types.WrapError(types.STORE_OPEN_FAILED, "ping postgres", err)
		}
		st, err := store.NewPostgresStore(ctx, db, validator)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return st, func() { db.Close() }, nil
	case "memory":
		return store.NewMemoryStore(store.WithValidator(validator)), func() {}, nil
	default:
		return nil, nil, types.NewError(types.CONFIG_VALIDATION_FAILED,
			fmt.Sprintf("unknown database driver %q", cfg.Database.Driver))
	}
}

// seedTenants provisions the root telemetry chain for each configured tenant
// that does not already have one.
func seedTenants(ctx context.Context, cfg *config.Config, st store.ChainStore, logger *slog.Logger) error {
	for _, tenant := range cfg.Seed.Tenants {
		existing, err := st.List(ctx, tenant)
		if err != nil {
			return err
		}
		seeded := false
		for _, c := range existing {
			if c.Name == chain.RootChainName {
				seeded = true
				break
			}
		}
		if seeded {
			continue
		}
		root, err := chain.NewRootChain(tenant)
		if err != nil {
			return err
		}
		if err := st.Save(ctx, root); err != nil {
			return err
		}
		logger.Info("seeded root telemetry chain", "tenant", tenant, "chainId", root.ID.String())
	}
	return nil
}

// loadChainDir loads every JSON/YAML chain definition in dir into the store.
// An invalid definition aborts startup; a half-loaded catalog is worse than a
// clean failure.
func loadChainDir(ctx context.Context, dir string, st store.ChainStore, validator *chain.Validator, logger *slog.Logger) error {
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.WrapError(types.CONFIG_LOAD_FAILED, "read chains dir", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return types.WrapError(types.CONFIG_LOAD_FAILED, "read "+path, err)
		}
		c, _, err := chain.Parse(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := validator.Validate(c).Err(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := st.Save(ctx, c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		logger.Info("loaded chain definition",
			"file", entry.Name(), "chain", c.Name, "tenant", c.TenantID, "status", string(c.Status))
	}
	return nil
}
