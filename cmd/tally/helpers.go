package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/Veraticus/spice-tally/internal/config"
	"github.com/Veraticus/spice-tally/internal/extraction"
	"github.com/Veraticus/spice-tally/internal/inference"
	"github.com/Veraticus/spice-tally/internal/keywords"
	"github.com/Veraticus/spice-tally/internal/learning"
	"github.com/Veraticus/spice-tally/internal/lifecycle"
	"github.com/Veraticus/spice-tally/internal/model"
	"github.com/Veraticus/spice-tally/internal/service"
	"github.com/Veraticus/spice-tally/internal/storage"
	"github.com/Veraticus/spice-tally/internal/storage/pgstore"
)

// app holds every wired component a command may need.
type app struct {
	store    service.Storage
	table    *keywords.Table
	engine   *inference.Engine
	learner  *learning.Service
	manager  *lifecycle.Manager
	oracle   extraction.Oracle
	settings config.Settings
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close storage", "error", err)
	}
}

func loadSettings() (config.Settings, error) {
	return config.Load(viper.GetViper())
}

// initStorage opens and migrates the configured backend.
func initStorage(ctx context.Context, settings config.Settings) (service.Storage, error) {
	var (
		store service.Storage
		err   error
	)

	switch strings.ToLower(settings.Database.Driver) {
	case config.DriverPostgres:
		store, err = pgstore.New(ctx, pgstore.Config{
			DSN:         settings.Database.DSN,
			MaxPoolSize: settings.Database.MaxPoolSize,
		}, slog.Default())
	default:
		store, err = storage.NewSQLiteStorage(settings.DatabasePath())
	}
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// loadSeed returns the configured keyword file, or the embedded table.
func loadSeed(settings config.Settings) (*keywords.Seed, error) {
	var (
		seed *keywords.Seed
		err  error
	)
	if settings.Keywords.Path != "" {
		seed, err = keywords.LoadSeedFile(config.ExpandPath(settings.Keywords.Path))
	} else {
		seed, err = keywords.DefaultSeed()
	}
	if err != nil {
		return nil, err
	}

	if settings.Inference.DefaultCategory != "" {
		seed.Default = settings.Inference.DefaultCategory
	}
	return seed, nil
}

// initApp loads settings, opens storage, syncs the keyword table and wires
// the engine, learner and lifecycle manager.
func initApp(ctx context.Context) (*app, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}

	seed, err := loadSeed(settings)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx, settings)
	if err != nil {
		return nil, err
	}

	a, err := wireApp(ctx, store, seed, settings)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func wireApp(ctx context.Context, store service.Storage, seed *keywords.Seed, settings config.Settings) (*app, error) {
	table, err := keywords.Sync(ctx, store, seed)
	if err != nil {
		return nil, err
	}

	engine, err := inference.New(table, store,
		inference.WithSmoothing(settings.Inference.SmoothingK),
		inference.WithAlternatives(settings.Inference.Alternatives),
	)
	if err != nil {
		return nil, err
	}

	learner, err := learning.NewService(store, settings.LearningConfig())
	if err != nil {
		return nil, err
	}

	manager, err := lifecycle.NewManager(store, table, engine, learner, settings.LifecycleConfig())
	if err != nil {
		return nil, err
	}

	return &app{
		store:    store,
		table:    table,
		engine:   engine,
		learner:  learner,
		manager:  manager,
		oracle:   extraction.NewRegexOracle(settings.Lifecycle.DefaultCurrency),
		settings: settings,
	}, nil
}

// categoryLabel renders "Parent / Child" for children and the name for roots.
func categoryLabel(table *keywords.Table, id int64) string {
	cat, ok := table.ByID(id)
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	if parent, ok := table.DisplayCategory(id); ok && parent.ID != cat.ID {
		return parent.Name + " / " + cat.Name
	}
	return cat.Name
}

// resolveCategory accepts either a slug or a numeric id.
func resolveCategory(table *keywords.Table, ref string) (model.Category, error) {
	if cat, ok := table.BySlug(strings.ToLower(ref)); ok {
		return cat, nil
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if cat, ok := table.ByID(id); ok {
			return cat, nil
		}
	}
	return model.Category{}, fmt.Errorf("unknown category %q", ref)
}

// defaultUser falls back to $USER so single-person use needs no flag.
func defaultUser() string {
	if u := os.Getenv("TALLY_USER"); u != "" {
		return u
	}
	return os.Getenv("USER")
}
