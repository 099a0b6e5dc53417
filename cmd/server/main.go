package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mwren/chitter/internal/api"
	"github.com/mwren/chitter/internal/chitter"
	"github.com/mwren/chitter/internal/config"
	"github.com/mwren/chitter/internal/memstore"
	"github.com/mwren/chitter/internal/sqlstore"
)

var (
	addr             string
	database         string
	databaseUser     string
	databasePassword string
	shutdownToken    string
	snapshotPath     string
	uploadDir        string
)

func main() {
	flag.StringVar(&addr, "addr", envOr("PORT", "localhost:8000"), "server address")
	flag.StringVar(&database, "database", os.Getenv("DATABASE"), "\"mem\" for the in-memory backend, or a Postgres host:port/dbname")
	flag.StringVar(&databaseUser, "database-user", os.Getenv("DATABASE_USER"), "Postgres user")
	flag.StringVar(&databasePassword, "database-password", os.Getenv("DATABASE_PASSWORD"), "Postgres password")
	flag.StringVar(&shutdownToken, "shutdown-token", os.Getenv("SHUTDOWN_TOKEN"), "bearer token required to call the shutdown endpoint")
	flag.StringVar(&snapshotPath, "snapshot-path", os.Getenv("SNAPSHOT_PATH"), "file the in-memory backend persists its snapshot to")
	flag.StringVar(&uploadDir, "upload-dir", os.Getenv("UPLOAD_DIR"), "directory attachment uploads are written to")
	flag.Parse()

	logger := log.New(os.Stderr, "[chitter] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, database, databaseUser, databasePassword, shutdownToken, snapshotPath, uploadDir)
	if err != nil {
		logger.Fatal("config: ", err)
	}

	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal("upload dir: ", err)
	}

	svc, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("store: ", err)
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	srv := api.NewServer(logger, svc, api.Config{
		Addr:          cfg.Addr,
		UploadDir:     cfg.UploadDir,
		ShutdownToken: cfg.ShutdownToken,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case <-srv.ShutdownRequested():
		logger.Println("shutdown requested via API")
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

// openStore selects and constructs the chitter.Service backend named by
// cfg.Backend. The in-memory backend persists to a JSON file at
// cfg.SnapshotPath; the Postgres backend runs migrations on connect.
func openStore(cfg *config.Config, logger *log.Logger) (chitter.Service, error) {
	if cfg.Backend == "mem" {
		save := func(snapshot []byte) error {
			return os.WriteFile(cfg.SnapshotPath, snapshot, 0o644)
		}
		load := func() ([]byte, error) {
			raw, err := os.ReadFile(cfg.SnapshotPath)
			if os.IsNotExist(err) {
				return nil, nil
			}
			return raw, err
		}
		return memstore.New(logger, save, load)
	}

	return sqlstore.Open(cfg.DatabaseDSN, logger)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
