package config

import "fmt"

// Config holds the process's runtime settings, built from the environment
// variables named in spec.md §6: DATABASE, DATABASE_USER, DATABASE_PASSWORD,
// PORT, SHUTDOWN_TOKEN, and SNAPSHOT_PATH.
type Config struct {
	Addr          string
	ShutdownToken string

	// Backend is "mem" to select the in-memory store, or "postgres" to
	// select sqlstore against DatabaseDSN.
	Backend      string
	DatabaseDSN  string
	SnapshotPath string
	UploadDir    string
}

// NewConfig validates and assembles a Config. It never panics; a missing
// required field returns an error describing which one.
func NewConfig(addr, database, databaseUser, databasePassword, shutdownToken, snapshotPath, uploadDir string) (*Config, error) {
	if addr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if shutdownToken == "" {
		return nil, fmt.Errorf("shutdown token cannot be empty")
	}
	if database == "" {
		return nil, fmt.Errorf("database cannot be empty")
	}
	if uploadDir == "" {
		uploadDir = "uploads"
	}

	if database == "mem" {
		if snapshotPath == "" {
			return nil, fmt.Errorf("snapshot path cannot be empty when database is \"mem\"")
		}
		return &Config{Addr: addr, ShutdownToken: shutdownToken, Backend: "mem", SnapshotPath: snapshotPath, UploadDir: uploadDir}, nil
	}

	if databaseUser == "" {
		return nil, fmt.Errorf("database user cannot be empty")
	}
	if databasePassword == "" {
		return nil, fmt.Errorf("database password cannot be empty")
	}

	dsn := fmt.Sprintf("postgres://%s:%s@%s?sslmode=disable", databaseUser, databasePassword, database)
	return &Config{Addr: addr, ShutdownToken: shutdownToken, Backend: "postgres", DatabaseDSN: dsn, UploadDir: uploadDir}, nil
}
