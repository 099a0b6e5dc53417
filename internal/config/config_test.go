package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Postgres(t *testing.T) {
	var (
		addr  = "localhost:8080"
		db    = "localhost:5432/chitter"
		user  = "chitter"
		pass  = "secret"
		token = "shutdown-token"
	)

	tcases := []struct {
		name  string
		addr  string
		db    string
		user  string
		pass  string
		token string
		err   bool
	}{
		{name: "valid config", addr: addr, db: db, user: user, pass: pass, token: token, err: false},
		{name: "empty address", addr: "", db: db, user: user, pass: pass, token: token, err: true},
		{name: "empty database", addr: addr, db: "", user: user, pass: pass, token: token, err: true},
		{name: "empty database user", addr: addr, db: db, user: "", pass: pass, token: token, err: true},
		{name: "empty database password", addr: addr, db: db, user: user, pass: "", token: token, err: true},
		{name: "empty shutdown token", addr: addr, db: db, user: user, pass: pass, token: "", err: true},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := NewConfig(tc.addr, tc.db, tc.user, tc.pass, tc.token, "", "")
			if tc.err {
				assert.Error(t, err, "expected error for config: %s", tc.name)
				return
			}
			assert.NoError(t, err, "expected no error for config: %s", tc.name)
			assert.Equal(t, tc.addr, cfg.Addr)
			assert.Equal(t, "postgres", cfg.Backend)
			assert.NotEmpty(t, cfg.DatabaseDSN)
		})
	}
}

func TestNewConfig_Memory(t *testing.T) {
	cfg, err := NewConfig("localhost:8080", "mem", "", "", "shutdown-token", "/var/lib/chitter/snapshot.json", "")
	assert.NoError(t, err)
	assert.Equal(t, "mem", cfg.Backend)
	assert.Equal(t, "/var/lib/chitter/snapshot.json", cfg.SnapshotPath)
	assert.Empty(t, cfg.DatabaseDSN, "in-memory backend has no DSN")
	assert.Equal(t, "uploads", cfg.UploadDir, "upload dir defaults when unset")
}

func TestNewConfig_MemoryRequiresSnapshotPath(t *testing.T) {
	_, err := NewConfig("localhost:8080", "mem", "", "", "shutdown-token", "", "")
	assert.Error(t, err)
}
