package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/yarbo-bridge/internal/bridges/yarbo"
	"github.com/nerrad567/yarbo-bridge/internal/commandlog"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/database"
	"github.com/nerrad567/yarbo-bridge/migrations"
)

// TestParseFlags verifies command-line parsing.
func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		wantConfig  string
		wantVersion bool
		wantErr     bool
	}{
		{"none", nil, "", false, false},
		{"long config", []string{"--config", "/etc/yarbo.yaml"}, "/etc/yarbo.yaml", false, false},
		{"short config", []string{"-c", "bridge.yaml"}, "bridge.yaml", false, false},
		{"version", []string{"--version"}, "", true, false},
		{"unknown flag", []string{"--bogus"}, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			opts, err := parseFlags(tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.configPath != tt.wantConfig || opts.showVersion != tt.wantVersion {
				t.Errorf("parseFlags() = %+v", opts)
			}
		})
	}
}

// TestParseFlags_Help verifies --help is reported as pflag.ErrHelp.
func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"--help"}, &out)
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("parseFlags(--help) error = %v, want ErrHelp", err)
	}
	if !strings.Contains(out.String(), "--config") {
		t.Errorf("usage does not mention --config: %s", out.String())
	}
}

// TestGetConfigPath verifies flag > YARBO_CONFIG > default file > none.
func TestGetConfigPath(t *testing.T) {
	t.Run("flag wins", func(t *testing.T) {
		t.Setenv("YARBO_CONFIG", "/from/env.yaml")
		if got := getConfigPath("/from/flag.yaml"); got != "/from/flag.yaml" {
			t.Errorf("getConfigPath() = %q", got)
		}
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("YARBO_CONFIG", "/from/env.yaml")
		if got := getConfigPath(""); got != "/from/env.yaml" {
			t.Errorf("getConfigPath() = %q", got)
		}
	})

	t.Run("no default file", func(t *testing.T) {
		t.Setenv("YARBO_CONFIG", "")
		chdir(t, t.TempDir())
		if got := getConfigPath(""); got != "" {
			t.Errorf("getConfigPath() = %q, want empty", got)
		}
	})

	t.Run("default file", func(t *testing.T) {
		t.Setenv("YARBO_CONFIG", "")
		dir := t.TempDir()
		chdir(t, dir)
		if err := os.MkdirAll(filepath.Join(dir, "configs"), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, defaultConfigPath), []byte("{}\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if got := getConfigPath(""); got != defaultConfigPath {
			t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
		}
	})
}

// TestRun_InvalidConfig verifies run fails with an invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingSerial verifies run fails validation without a serial
// or cloud account.
func TestRun_MissingSerial(t *testing.T) {
	for _, key := range []string{"YARBO_ROBOT_SERIAL", "YARBO_EMAIL", "YARBO_ACCESS_TOKEN", "YARBO_REFRESH_TOKEN"} {
		t.Setenv(key, "")
	}

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
robot:
  host: "127.0.0.1"
  port: 8883

discovery:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, configPath)
	if err == nil {
		t.Fatal("run() should fail without a robot serial")
	}
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("run() error = %v, want ErrInvalidConfig", err)
	}
}

// TestCommandRecorder verifies observed commands reach the command log.
func TestCommandRecorder(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{
		Enabled:     true,
		Path:        filepath.Join(t.TempDir(), "bridge.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	repo := commandlog.NewSQLiteRepository(db.DB)
	rec := &commandRecorder{repo: repo}

	ts := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	err = rec.RecordCommand(ctx, yarbo.CommandEntry{
		Timestamp: ts,
		Command:   "cmd_vel",
		Topic:     "snowbot/SN123/app/cmd_vel",
		Payload:   map[string]any{"vel": 0.5, "rev": 0.0},
	})
	if err != nil {
		t.Fatalf("RecordCommand() error: %v", err)
	}

	res, err := repo.List(ctx, commandlog.Filter{})
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if res.Total != 1 {
		t.Fatalf("Total = %d, want 1", res.Total)
	}
	got := res.Entries[0]
	if got.Command != "cmd_vel" || got.Topic != "snowbot/SN123/app/cmd_vel" || !got.CreatedAt.Equal(ts) {
		t.Errorf("entry = %+v", got)
	}
	if got.Payload["vel"] != 0.5 {
		t.Errorf("payload = %v", got.Payload)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir on older toolchains).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
