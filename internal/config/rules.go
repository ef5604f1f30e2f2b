package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/mroshb/rallypoint/internal/combat"
	"github.com/mroshb/rallypoint/internal/movement"
	"github.com/mroshb/rallypoint/internal/units"
	"github.com/mroshb/rallypoint/pkg/logger"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// GameRules is the balance configuration the engine reads at resolution time.
type GameRules struct {
	Combat    combat.Rules             `yaml:"combat"`
	Precision movement.PrecisionConfig `yaml:"precision"`
	Units     []units.UnitType         `yaml:"units"`

	Catalog units.Catalog `yaml:"-"`
}

func DefaultGameRules() *GameRules {
	return &GameRules{
		Combat:    combat.DefaultRules(),
		Precision: movement.DefaultPrecision(),
		Catalog:   units.DefaultCatalog(),
	}
}

// ParseRules decodes a rules document over the compiled-in defaults.
func ParseRules(data []byte) (*GameRules, error) {
	rules := DefaultGameRules()
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	rules.Catalog = units.DefaultCatalog().Merge(rules.Units)
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *GameRules) Validate() error {
	if err := r.Combat.Validate(); err != nil {
		return fmt.Errorf("invalid combat rules: %w", err)
	}
	if err := r.Catalog.Validate(); err != nil {
		return fmt.Errorf("invalid unit catalog: %w", err)
	}
	if len(r.Precision.Tiers) == 0 {
		return fmt.Errorf("precision.tiers must not be empty")
	}
	for _, t := range r.Precision.Tiers {
		if t.WindowMs <= 0 {
			return fmt.Errorf("precision tier for rally level %d must have a positive window", t.MinRallyLevel)
		}
	}
	if r.Precision.DistanceStep < 0 || r.Precision.DistanceFactor < 0 {
		return fmt.Errorf("precision distance step and factor must not be negative")
	}
	return nil
}

// RulesProvider serves the current rules and swaps them atomically on reload.
type RulesProvider struct {
	fs      afero.Fs
	path    string
	current atomic.Pointer[GameRules]
}

// NewRulesProvider loads path from fs. An empty path serves the defaults.
func NewRulesProvider(fs afero.Fs, path string) (*RulesProvider, error) {
	p := &RulesProvider{fs: fs, path: path}
	p.current.Store(DefaultGameRules())
	if path == "" {
		return p, nil
	}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// StaticRules wraps fixed rules, for tests and one-shot commands.
func StaticRules(rules *GameRules) *RulesProvider {
	p := &RulesProvider{}
	p.current.Store(rules)
	return p
}

func (p *RulesProvider) Current() *GameRules {
	return p.current.Load()
}

// Reload re-reads the rules file. On failure the previous rules stay active.
func (p *RulesProvider) Reload() error {
	if p.path == "" {
		return nil
	}
	data, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		return fmt.Errorf("failed to read rules file %s: %w", p.path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return err
	}
	p.current.Store(rules)
	logger.Info("Rules loaded", "path", p.path, "units", len(rules.Catalog))
	return nil
}

// Watch reloads the rules whenever the file changes until ctx is cancelled.
// It watches the parent directory so editors that replace the file are seen too.
func (p *RulesProvider) Watch(ctx context.Context) error {
	if p.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(p.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := p.Reload(); err != nil {
					logger.Error("Rules reload rejected, keeping previous rules", "path", p.path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("Rules watcher error", "error", err)
			}
		}
	}()

	logger.Info("Watching rules file", "path", p.path)
	return nil
}
