package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("http:\n  addr: \":8080\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != DriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Sync.Interval != 3*time.Second || cfg.Sync.CleanupInterval != time.Hour || cfg.Sync.RoomLifetime != 24*time.Hour {
		t.Fatalf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Room.MessageLimit != 100 || cfg.Identity.CookieName != "userId" || cfg.WS.SendBuffer != 256 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Logging.Service != "board-service" || cfg.Logging.Backend != "std" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"missing http addr": "grpc:\n  addr: \":9090\"\n",
		"postgres no dsn":   "http:\n  addr: \":1\"\nstorage:\n  driver: postgres\n",
		"mongo no uri":      "http:\n  addr: \":1\"\nstorage:\n  driver: mongo\n",
		"redis no addr":     "http:\n  addr: \":1\"\nstorage:\n  driver: redis\n",
		"unknown driver":    "http:\n  addr: \":1\"\nstorage:\n  driver: cassandra\n",
		"negative interval": "http:\n  addr: \":1\"\nsync:\n  interval: -1s\n",
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("TEST_PG_DSN", "postgres://u:p@localhost:5432/board")
	doc := `
http:
  addr: ":8080"
storage:
  driver: Postgres
  postgres:
    dsn: "${TEST_PG_DSN}"
    maxConns: 4
sync:
  interval: 500ms
  skipOccupied: true
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.Postgres.DSN != "postgres://u:p@localhost:5432/board" {
		t.Fatalf("unexpected storage: %+v", cfg.Storage)
	}
	pg := cfg.Storage.Postgres.ToPGConfig()
	if pg.MaxConns != 4 || pg.ApplicationName != "board-service" {
		t.Fatalf("unexpected pg config: %+v", pg)
	}
	if cfg.Sync.Interval != 500*time.Millisecond || !cfg.Sync.SkipOccupied {
		t.Fatalf("unexpected sync: %+v", cfg.Sync)
	}
}

func TestParseRedis(t *testing.T) {
	doc := "http:\n  addr: \":1\"\nstorage:\n  driver: redis\n  redis:\n    addr: \"localhost:6379\"\n    db: 2\n"
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rc := cfg.Storage.Redis.ToRedisConfig()
	if rc.Addr != "localhost:6379" || rc.DB != 2 || rc.KeyPrefix != "board:" {
		t.Fatalf("unexpected redis config: %+v", rc)
	}
}

func TestLoadConfigFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  addr: \":7070\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("unexpected addr %q", cfg.HTTP.Addr)
	}

	t.Setenv("CONFIG_PATH", filepath.Join(dir, "missing.yaml"))
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Fatalf("expected missing file error, got %v", err)
	}
}

func TestShippedConfigParses(t *testing.T) {
	data, err := os.ReadFile("config.yaml")
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOARD_STORAGE_DRIVER", "")
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("parse shipped config: %v", err)
	}
	if cfg.GRPC.Addr != ":9090" || cfg.Storage.Driver != DriverMemory {
		t.Fatalf("unexpected shipped config: %+v", cfg)
	}
}
