package commandlog

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/config"
	"github.com/nerrad567/yarbo-bridge/internal/infrastructure/database"
	"github.com/nerrad567/yarbo-bridge/migrations"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "commands.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewSQLiteRepository(db.DB)
}

func TestCreate_FillsDefaults(t *testing.T) {
	repo := newTestRepo(t)
	e := &Entry{Command: "light_ctrl", Topic: "snowbot/SN1/app/light_ctrl", Payload: map[string]any{"led_head": 255.0}}

	if err := repo.Create(context.Background(), e); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if !strings.HasPrefix(e.ID, "cmd-") || len(e.ID) != 12 {
		t.Errorf("ID = %q, want cmd- plus 8 chars", e.ID)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	res, err := repo.List(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if res.Total != 1 || len(res.Entries) != 1 {
		t.Fatalf("List() = %+v", res)
	}
	got := res.Entries[0]
	if got.ID != e.ID || got.Topic != e.Topic || got.Payload["led_head"] != 255.0 {
		t.Errorf("entry = %+v", got)
	}
}

func TestCreate_RejectsEmptyCommand(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Create(context.Background(), &Entry{}); err == nil {
		t.Error("Create() with empty command should fail")
	}
}

func TestList_OrderFilterAndPaging(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	cmds := []string{"cmd_recharge", "planning_paused", "resume", "planning_paused", "shutdown"}
	for i, c := range cmds {
		if err := repo.Create(ctx, &Entry{Command: c, Topic: "t", CreatedAt: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("Create(%s) error = %v", c, err)
		}
	}

	tests := []struct {
		name      string
		filter    Filter
		wantTotal int
		wantFirst string
		wantLen   int
	}{
		{"all newest first", Filter{}, 5, "shutdown", 5},
		{"by command", Filter{Command: "planning_paused"}, 2, "planning_paused", 2},
		{"since", Filter{Since: base.Add(3 * time.Second)}, 2, "shutdown", 2},
		{"paged", Filter{Limit: 2, Offset: 1}, 5, "planning_paused", 2},
		{"no match", Filter{Command: "nope"}, 0, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if res.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", res.Total, tt.wantTotal)
			}
			if len(res.Entries) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(res.Entries), tt.wantLen)
			}
			if tt.wantLen > 0 && res.Entries[0].Command != tt.wantFirst {
				t.Errorf("first = %s, want %s", res.Entries[0].Command, tt.wantFirst)
			}
		})
	}
}

func TestList_ClampsLimit(t *testing.T) {
	repo := newTestRepo(t)

	tests := []struct {
		in, want int
	}{
		{0, defaultLimit},
		{-3, defaultLimit},
		{10, 10},
		{1000, maxLimit},
	}
	for _, tt := range tests {
		res, err := repo.List(context.Background(), Filter{Limit: tt.in, Offset: -1})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Limit != tt.want || res.Offset != 0 {
			t.Errorf("Limit %d -> %d/%d, want %d/0", tt.in, res.Limit, res.Offset, tt.want)
		}
		if res.Entries == nil {
			t.Error("Entries should be an empty slice, not nil")
		}
	}
}
