package storage

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/small-frappuccino/rolebuttons/pkg/buttons"
)

func newTempStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store := NewStore(dbPath)
	if err := store.Init(); err != nil {
		t.Fatalf("init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func rec(id, guild, channel, message string) buttons.Record {
	return buttons.Record{
		ID:     id,
		RoleID: "role-" + id,
		Action: buttons.ActionToggle,
		Silent: true,
		Origin: buttons.Origin{GuildID: guild, ChannelID: channel, MessageID: message},
	}
}

func TestSchemaInitialized(t *testing.T) {
	store := newTempStore(t)
	rows, err := store.db.Query(`SELECT name FROM sqlite_master WHERE type='table'`)
	if err != nil {
		t.Fatalf("query schema: %v", err)
	}
	defer rows.Close()

	required := map[string]bool{
		"buttons":      false,
		"runtime_meta": false,
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		if _, ok := required[name]; ok {
			required[name] = true
		}
	}
	for k, ok := range required {
		if !ok {
			t.Fatalf("expected table %s to exist", k)
		}
	}
}

func TestUninitializedStore(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "x.db"))
	if _, err := s.GetButton("a"); err == nil {
		t.Fatal("expected error before Init")
	}
	if n, err := s.DeleteButtons([]buttons.Record{rec("a", "g", "c", "m")}); err == nil || n != -1 {
		t.Fatalf("expected -1 and error before Init, got %d %v", n, err)
	}
	if err := NewStore("").Init(); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestInsertAndGetButton(t *testing.T) {
	store := newTempStore(t)
	want := rec("b1", "g1", "c1", "m1")
	if err := store.InsertButtons([]buttons.Record{want}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.GetButton("b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || *got != want {
		t.Fatalf("unexpected record: %+v", got)
	}

	missing, err := store.GetButton("nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil,nil for missing id, got %+v, %v", missing, err)
	}
}

func TestInsertButtonsIsAllOrNothing(t *testing.T) {
	store := newTempStore(t)
	if err := store.InsertButtons([]buttons.Record{rec("dup", "g", "c", "m")}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := store.InsertButtons([]buttons.Record{
		rec("fresh", "g", "c", "m2"),
		rec("dup", "g", "c", "m2"),
	})
	if err == nil {
		t.Fatal("expected primary key violation")
	}
	if got, _ := store.GetButton("fresh"); got != nil {
		t.Fatalf("partial insert leaked: %+v", got)
	}
	if got, _ := store.GetButton("dup"); got == nil || got.MessageID != "m" {
		t.Fatalf("original row altered: %+v", got)
	}
}

func TestListAndCountButtons(t *testing.T) {
	store := newTempStore(t)
	seed := []buttons.Record{
		rec("a", "g1", "c1", "m1"),
		rec("b", "g1", "c2", "m2"),
		rec("c", "g2", "c3", "m3"),
	}
	if err := store.InsertButtons(seed); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all, err := store.ListButtons("")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %d %v", len(all), err)
	}
	g1, err := store.ListButtons("g1")
	if err != nil || len(g1) != 2 {
		t.Fatalf("list g1: %d %v", len(g1), err)
	}
	for _, r := range g1 {
		if r.GuildID != "g1" {
			t.Fatalf("scope leak: %+v", r)
		}
	}
	if n, _ := store.CountButtons("g2"); n != 1 {
		t.Fatalf("count g2 = %d", n)
	}
	if n, _ := store.CountButtons(""); n != 3 {
		t.Fatalf("count all = %d", n)
	}
}

func TestDeleteButtons(t *testing.T) {
	store := newTempStore(t)
	seed := []buttons.Record{rec("a", "g", "c", "m"), rec("b", "g", "c", "m"), rec("c", "g", "c", "m")}
	if err := store.InsertButtons(seed); err != nil {
		t.Fatalf("insert: %v", err)
	}

	n, err := store.DeleteButtons(seed[:2])
	if err != nil || n != 2 {
		t.Fatalf("delete: %d %v", n, err)
	}
	if left, _ := store.CountButtons(""); left != 1 {
		t.Fatalf("expected 1 row left, got %d", left)
	}
	if n, err := store.DeleteButtons(nil); err != nil || n != 0 {
		t.Fatalf("empty delete: %d %v", n, err)
	}
}

func TestDeleteButtonsRollsBackOnRowCountMismatch(t *testing.T) {
	store := newTempStore(t)
	seed := []buttons.Record{rec("a", "g", "c", "m"), rec("b", "g", "c", "m"), rec("c", "g", "c", "m")}
	if err := store.InsertButtons(seed); err != nil {
		t.Fatalf("insert: %v", err)
	}

	batch := []buttons.Record{seed[0], seed[1], rec("ghost", "g", "c", "m")}
	n, err := store.DeleteButtons(batch)
	if n != -1 || !errors.Is(err, ErrRowCountMismatch) {
		t.Fatalf("expected -1/ErrRowCountMismatch, got %d %v", n, err)
	}
	if left, _ := store.CountButtons(""); left != 3 {
		t.Fatalf("rollback failed, %d rows left", left)
	}

	// Guild id is part of the key: a record moved to another guild does not match.
	wrongGuild := seed[2]
	wrongGuild.GuildID = "other"
	if n, err := store.DeleteButtons([]buttons.Record{wrongGuild}); n != -1 || err == nil {
		t.Fatalf("expected mismatch for wrong guild, got %d %v", n, err)
	}
}

func TestMetaTimes(t *testing.T) {
	store := newTempStore(t)
	if _, ok, err := store.GetMetaTime("button_prune_last_run"); err != nil || ok {
		t.Fatalf("expected no marker, got ok=%v err=%v", ok, err)
	}
	now := time.Now().UTC().Truncate(time.Second)
	if err := store.SetMetaTime("button_prune_last_run", now); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, ok, err := store.GetMetaTime("button_prune_last_run")
	if err != nil || !ok || !got.Equal(now) {
		t.Fatalf("get: %v %v %v", got, ok, err)
	}

	if err := store.SetHeartbeat(time.Time{}); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if _, ok, _ := store.GetHeartbeat(); !ok {
		t.Fatal("expected heartbeat to be recorded")
	}
}
