package app

import (
	"path/filepath"
	"testing"

	"entity-learning-service/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Database.Path = filepath.Join(dir, "data", "learning.db")
	cfg.Model.Dir = filepath.Join(dir, "models")
	cfg.Model.ActivePath = filepath.Join(dir, "models", "ner.zip")
	cfg.Model.TempDir = filepath.Join(dir, "models", "tmp")
	return cfg
}

func TestNewSeedsScenariosIdempotently(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scenarios = []config.ScenarioConfig{{Name: "contacts", EntityTypes: []string{"EMAIL"}}}

	a, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	scenarios, err := a.Learner.ListScenarios()
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	assert.True(t, scenarios[0].IsBuiltin)
	assert.False(t, a.Learner.ModelLoaded())
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Development = true
	logger, err := NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)

	cfg.Log.Level = "loud"
	_, err = NewLogger(cfg)
	assert.Error(t, err)
}
