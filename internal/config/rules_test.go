package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mroshb/rallypoint/internal/combat"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
combat:
  morale:
    exponent: 0.3
  catapult:
    building_floors:
      MARKETPLACE: 2
    world_wonder:
      max_drop_per_siege: 2
  battle:
    night_start_hour: 23
    night_end_hour: 7
precision:
  tiers:
    - min_rally_level: 0
      window_ms: 3000
    - min_rally_level: 10
      window_ms: 250
units:
  - id: trebuchet
    name: Trebuchet
    role: catapult
    attack: 80
    def_infantry: 40
    def_cavalry: 10
    speed: 2
`

func TestParseRules_MergesOverDefaults(t *testing.T) {
	rules, err := ParseRules([]byte(sampleRules))
	require.NoError(t, err)

	defaults := combat.DefaultRules()
	assert.Equal(t, 0.3, rules.Combat.Morale.Exponent)
	assert.Equal(t, defaults.Morale.MinAttMult, rules.Combat.Morale.MinAttMult)
	assert.Equal(t, 2, rules.Combat.Catapult.BuildingFloors["MARKETPLACE"])
	assert.Equal(t, 1, rules.Combat.Catapult.BuildingFloors["PALACE"])
	assert.Equal(t, 2, rules.Combat.Catapult.WorldWonder.MaxDropPerSiege)
	assert.Equal(t, defaults.Ram, rules.Combat.Ram)
	assert.Len(t, rules.Precision.Tiers, 2)

	require.Contains(t, rules.Catalog, "trebuchet")
	assert.Contains(t, rules.Catalog, "axeman")
}

func TestParseRules_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "Malformed YAML", doc: "combat: [unterminated"},
		{name: "Invalid morale bounds", doc: "combat:\n  morale:\n    min_att_mult: 2\n"},
		{name: "Unknown capital mode", doc: "combat:\n  catapult:\n    capital:\n      mode: maybe\n"},
		{name: "Empty precision tiers", doc: "precision:\n  tiers: []\n"},
		{name: "Unit without speed", doc: "units:\n  - id: statue\n    role: infantry\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestRulesProvider_Reload(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/rally/rules.yaml", []byte(sampleRules), 0o644))

	p, err := NewRulesProvider(fs, "/etc/rally/rules.yaml")
	require.NoError(t, err)
	assert.Equal(t, 0.3, p.Current().Combat.Morale.Exponent)

	require.NoError(t, afero.WriteFile(fs, "/etc/rally/rules.yaml", []byte("combat:\n  morale:\n    exponent: 0.5\n"), 0o644))
	require.NoError(t, p.Reload())
	assert.Equal(t, 0.5, p.Current().Combat.Morale.Exponent)

	require.NoError(t, afero.WriteFile(fs, "/etc/rally/rules.yaml", []byte("combat:\n  morale:\n    exponent: -1\n"), 0o644))
	assert.Error(t, p.Reload())
	assert.Equal(t, 0.5, p.Current().Combat.Morale.Exponent, "invalid reload must keep previous rules")
}

func TestRulesProvider_Defaults(t *testing.T) {
	p, err := NewRulesProvider(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, combat.DefaultRules().Morale, p.Current().Combat.Morale)

	_, err = NewRulesProvider(afero.NewMemMapFs(), "/missing.yaml")
	assert.Error(t, err)
}

func TestRulesProvider_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	p, err := NewRulesProvider(afero.NewOsFs(), path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Watch(ctx))

	require.NoError(t, os.WriteFile(path, []byte("combat:\n  morale:\n    exponent: 0.4\n"), 0o644))
	assert.Eventually(t, func() bool {
		return p.Current().Combat.Morale.Exponent == 0.4
	}, 5*time.Second, 20*time.Millisecond)
}
