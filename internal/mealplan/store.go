package mealplan

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/culinascan/internal/config"
	"github.com/loqalabs/culinascan/internal/recipe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	_ "modernc.org/sqlite"
)

// StorageKey is the key the whole plan is stored under.
const StorageKey = "culinascan_meal_plan"

// ErrNotFound is returned when removing an id that is not in the plan.
var ErrNotFound = errors.New("meal plan item not found")

// Store keeps the saved recipes in memory and writes the full list through to a
// SQLite key-value table on every mutation.
type Store struct {
	db    *sql.DB
	cfg   config.MealPlanConfig
	log   *slog.Logger
	clock func() time.Time
	newID func() string

	mu    sync.RWMutex
	items []recipe.MealPlanItem
}

// Open reads the persisted plan once. Unparseable data is discarded.
func Open(ctx context.Context, cfg config.MealPlanConfig, log *slog.Logger) (*Store, error) {
	s := &Store{
		cfg:   cfg,
		log:   log.With(slog.String("component", "meal-plan")),
		clock: time.Now,
		newID: uuid.NewString,
	}
	if cfg.Mode == "ephemeral" {
		s.initMetrics()
		return s, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s.db = db

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.initMetrics()
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);`)
	if err != nil {
		return fmt.Errorf("init meal plan schema: %w", err)
	}
	return nil
}

func (s *Store) load(ctx context.Context) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, StorageKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read meal plan: %w", err)
	}
	var items []recipe.MealPlanItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.Warn("discarding unreadable meal plan", slog.String("error", err.Error()))
		return nil
	}
	s.items = items
	return nil
}

func (s *Store) persist(ctx context.Context, items []recipe.MealPlanItem) error {
	if s.db == nil {
		return nil
	}
	if items == nil {
		items = []recipe.MealPlanItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value, updated_at) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		StorageKey, string(data), s.clock().UTC())
	if err != nil {
		return fmt.Errorf("write meal plan: %w", err)
	}
	return nil
}

// List returns the saved recipes in the order they were added.
func (s *Store) List() []recipe.MealPlanItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]recipe.MealPlanItem, len(s.items))
	copy(items, s.items)
	return items
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Add saves r with a fresh id and timestamp.
func (s *Store) Add(ctx context.Context, r recipe.Recipe) (recipe.MealPlanItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := recipe.MealPlanItem{Recipe: r, ID: s.newID(), SavedAt: s.clock().UnixMilli()}
	next := append(append([]recipe.MealPlanItem(nil), s.items...), item)
	if err := s.persist(ctx, next); err != nil {
		return recipe.MealPlanItem{}, err
	}
	s.items = next
	return item, nil
}

func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]recipe.MealPlanItem, 0, len(s.items))
	for _, item := range s.items {
		if item.ID != id {
			next = append(next, item)
		}
	}
	if len(next) == len(s.items) {
		return ErrNotFound
	}
	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.items = next
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persist(ctx, nil); err != nil {
		return err
	}
	s.items = nil
	return nil
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/culinascan/mealplan")
	gauge, err := meter.Int64ObservableGauge("culinascan.mealplan.items", metric.WithDescription("Recipes saved to the meal plan"))
	if err != nil {
		s.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
		return
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(s.Len()))
		return nil
	}, gauge)
	if err != nil {
		s.log.Warn("failed to register metrics callback", slog.String("error", err.Error()))
	}
}
