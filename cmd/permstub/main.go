package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"family-admin/internal/config"
	"family-admin/internal/database"
	"family-admin/internal/domain"
	"family-admin/internal/httpapi"
	"family-admin/internal/logger"
	"family-admin/internal/repository"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "permstub")
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB 可选：连不上时回退到内存 repo
	var db *sql.DB
	var repo repository.PermissionsRepository = repository.NewMemoryPermissionsRepo()
	if cfg.DBEnabled {
		if d, err := database.NewPostgresDB(ctx, &cfg.Database); err == nil {
			pg := repository.NewPostgresPermissionsRepo(d)
			if err := pg.EnsureSchema(ctx); err != nil {
				log.Warn("ensure schema failed, falling back to memory repo", zap.Error(err))
				_ = d.Close()
			} else {
				db = d
				repo = pg
				log.Info("DB enabled for permstub")
			}
		} else {
			log.Warn("DB enabled but connection failed, falling back to memory repo", zap.Error(err))
		}
	}

	if cfg.Stub.SeedDemo {
		if err := seedDemoSubjects(ctx, repo); err != nil {
			log.Warn("seed demo subjects failed", zap.Error(err))
		}
	}

	handler := httpapi.NewPermissionsHandler(repo, log)
	if len(cfg.Stub.FailEntities) > 0 {
		entities, err := parseEntities(cfg.Stub.FailEntities)
		if err != nil {
			log.Fatal("invalid STUB_FAIL_ENTITIES", zap.Error(err))
		}
		handler.SetFailEntities(entities...)
		log.Info("failure injection enabled", zap.Strings("entities", cfg.Stub.FailEntities))
	}

	router := httpapi.NewRouter(log)
	router.RegisterPermissionRoutes(handler)
	srv := httpapi.NewServer(cfg.HTTP.Addr, router, log)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server stopped", zap.Error(err))
		}
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if db != nil {
		_ = db.Close()
	}
}

func parseEntities(names []string) ([]domain.Entity, error) {
	out := make([]domain.Entity, 0, len(names))
	for _, part := range names {
		e, err := domain.ParseEntity(part)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", part, err)
		}
		out = append(out, e)
	}
	return out, nil
}
