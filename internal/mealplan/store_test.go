package mealplan

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/culinascan/internal/config"
	"github.com/loqalabs/culinascan/internal/recipe"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleRecipe(title string) recipe.Recipe {
	return recipe.Recipe{
		Title:           title,
		IngredientsUsed: []string{"rice", "peas"},
		Instructions:    []string{"Fry the rice."},
		Emoji:           "🍚",
		PrepTime:        "20 mins",
		Difficulty:      recipe.DifficultyEasy,
		Calories:        450,
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.MealPlanConfig{Mode: "sqlite", Path: filepath.Join(t.TempDir(), "plan.db")}

	store, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	store.clock = func() time.Time { return time.UnixMilli(1700000000000) }
	first, err := store.Add(ctx, sampleRecipe("Fried Rice"))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.ID == "" || first.SavedAt != 1700000000000 {
		t.Fatalf("unexpected item %+v", first)
	}
	if _, err := store.Add(ctx, sampleRecipe("Pea Soup")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	items := reopened.List()
	if len(items) != 2 || items[0].Title != "Fried Rice" || items[1].Title != "Pea Soup" {
		t.Fatalf("unexpected items after reopen %+v", items)
	}
	if items[0].ID != first.ID {
		t.Fatalf("id not persisted")
	}
}

func TestRemoveAndClear(t *testing.T) {
	ctx := context.Background()
	cfg := config.MealPlanConfig{Mode: "sqlite", Path: filepath.Join(t.TempDir(), "plan.db")}
	store, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	a, _ := store.Add(ctx, sampleRecipe("A"))
	_, _ = store.Add(ctx, sampleRecipe("B"))
	if err := store.Remove(ctx, a.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := store.Remove(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one item, got %d", store.Len())
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if store.Len() != 0 {
		t.Fatalf("expected empty plan")
	}

	var raw string
	if err := store.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&raw); err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if raw != "[]" {
		t.Fatalf("expected stored empty list, got %q", raw)
	}
}

func TestCorruptDataStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plan.db")
	cfg := config.MealPlanConfig{Mode: "sqlite", Path: path}

	store, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)`, StorageKey, "{not json", time.Now().UTC()); err != nil {
		t.Fatalf("seed corrupt data: %v", err)
	}
	_ = db.Close()

	store, err = Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open with corrupt data: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if store.Len() != 0 {
		t.Fatalf("expected empty plan, got %d items", store.Len())
	}
	if _, err := store.Add(ctx, sampleRecipe("Recovered")); err != nil {
		t.Fatalf("add after recovery: %v", err)
	}
}

func TestEphemeralMode(t *testing.T) {
	store, err := Open(context.Background(), config.MealPlanConfig{Mode: "ephemeral"}, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if _, err := store.Add(context.Background(), sampleRecipe("Temp")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one item")
	}
}
