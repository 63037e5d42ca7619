package repository

import (
	"path/filepath"
	"testing"

	"entity-learning-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestRepository opens a migrated SQLite database in a temp dir.
func newTestRepository(t *testing.T) *Repository {
	t.Helper()

	logger := zaptest.NewLogger(t)
	db, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)

	repo := NewRepository(db, logger)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func addScenario(t *testing.T, repo *Repository, name string, builtin bool) *models.Scenario {
	t.Helper()
	s := &models.Scenario{Name: name, EntityTypes: models.StringList{"PER", "ORG"}, IsBuiltin: builtin}
	require.NoError(t, repo.AddScenario(s))
	return s
}

func TestScenarioCRUD(t *testing.T) {
	repo := newTestRepository(t)

	custom := addScenario(t, repo, "contracts", false)
	builtin := addScenario(t, repo, "general", true)

	scenarios, err := repo.ListScenarios()
	require.NoError(t, err)
	assert.Len(t, scenarios, 2)

	got, err := repo.GetScenario(custom.ID)
	require.NoError(t, err)
	assert.Equal(t, "contracts", got.Name)
	assert.Equal(t, models.StringList{"PER", "ORG"}, got.EntityTypes)
	assert.False(t, got.IsBuiltin)

	err = repo.DeleteScenario(builtin.ID)
	assert.ErrorIs(t, err, ErrBuiltinScenario)

	require.NoError(t, repo.DeleteScenario(custom.ID))
	_, err = repo.GetScenario(custom.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnsureScenarioIsIdempotent(t *testing.T) {
	repo := newTestRepository(t)

	first, err := repo.EnsureScenario(&models.Scenario{Name: "general", IsBuiltin: true})
	require.NoError(t, err)
	second, err := repo.EnsureScenario(&models.Scenario{Name: "general", IsBuiltin: true})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	scenarios, err := repo.ListScenarios()
	require.NoError(t, err)
	assert.Len(t, scenarios, 1)
}

func TestAddAnnotatedTextDeduplicatesByRawText(t *testing.T) {
	repo := newTestRepository(t)
	s := addScenario(t, repo, "contracts", false)

	first := &models.AnnotatedText{
		ScenarioID:  s.ID,
		RawText:     "Acme signed with Bob",
		Annotations: models.EntityList{{StartIndex: 0, EndIndex: 4, EntityType: "ORG", Text: "Acme"}},
		Source:      models.SourceImport,
	}
	created, err := repo.AddAnnotatedText(first)
	require.NoError(t, err)
	assert.True(t, created)

	second := &models.AnnotatedText{
		ScenarioID: s.ID,
		RawText:    "Acme signed with Bob",
		Annotations: models.EntityList{
			{StartIndex: 0, EndIndex: 4, EntityType: "ORG", Text: "Acme"},
			{StartIndex: 17, EndIndex: 20, EntityType: "PER", Text: "Bob"},
		},
		Source:     models.SourceManualCorrection,
		IsVerified: true,
	}
	created, err = repo.AddAnnotatedText(second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	texts, err := repo.ListAnnotatedTexts(s.ID, false)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Len(t, texts[0].Annotations, 2)
	assert.True(t, texts[0].IsVerified)
	assert.Equal(t, models.SourceManualCorrection, texts[0].Source)

	// Case differences are distinct texts
	_, err = repo.AddAnnotatedText(&models.AnnotatedText{ScenarioID: s.ID, RawText: "acme signed with bob", Source: models.SourceImport})
	require.NoError(t, err)
	count, err := repo.CountAnnotatedTexts(s.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	verified, err := repo.CountAnnotatedTexts(s.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 1, verified)
}

func TestDeleteAnnotatedText(t *testing.T) {
	repo := newTestRepository(t)
	s := addScenario(t, repo, "contracts", false)

	a := &models.AnnotatedText{ScenarioID: s.ID, RawText: "text", Source: models.SourceManual}
	_, err := repo.AddAnnotatedText(a)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteAnnotatedText(a.ID))
	assert.ErrorIs(t, repo.DeleteAnnotatedText(a.ID), ErrNotFound)
}

func TestUncertainQueue(t *testing.T) {
	repo := newTestRepository(t)
	s := addScenario(t, repo, "contracts", false)

	for i, text := range []string{"alpha", "beta", "gamma"} {
		inserted, err := repo.InsertUncertainIfAbsent(&models.UncertainEntry{
			ScenarioID:    s.ID,
			RawText:       text,
			MinConfidence: 0.9 - float64(i)*0.3,
		})
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	inserted, err := repo.InsertUncertainIfAbsent(&models.UncertainEntry{ScenarioID: s.ID, RawText: "beta", MinConfidence: 0.1})
	require.NoError(t, err)
	assert.False(t, inserted)

	pending, err := repo.ListPendingUncertain(s.ID, 0)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"gamma", "beta", "alpha"}, []string{pending[0].RawText, pending[1].RawText, pending[2].RawText})

	limited, err := repo.ListPendingUncertain(s.ID, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	require.NoError(t, repo.MarkUncertainReviewed(pending[0].ID, true, "not relevant"))
	// already processed
	require.NoError(t, repo.MarkUncertainReviewed(pending[0].ID, false, ""))

	entry, err := repo.GetUncertainEntry(pending[0].ID)
	require.NoError(t, err)
	assert.True(t, entry.IsReviewed)
	assert.True(t, entry.IsSkipped)
	assert.Equal(t, "not relevant", entry.SkipReason)
	assert.NotNil(t, entry.ReviewedAt)

	count, err := repo.CountPendingUncertain(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	assert.ErrorIs(t, repo.MarkUncertainReviewed(9999, false, ""), ErrNotFound)
}

func TestLearningSessions(t *testing.T) {
	repo := newTestRepository(t)
	s := addScenario(t, repo, "contracts", false)

	_, err := repo.LatestLearningSession(s.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	session := &models.LearningSession{
		ScenarioID:    s.ID,
		SamplesAfter:  5,
		MetricsBefore: models.QualityMetrics{F1: 0.5, PerTypeF1: map[string]float64{"ORG": 0.5}},
		MetricsAfter:  models.QualityMetrics{F1: 0.75, Support: map[string]int{"ORG": 4}},
		Improved:      true,
		ModelApplied:  true,
	}
	require.NoError(t, repo.SaveLearningSession(session))
	assert.NotZero(t, session.ID)

	latest, err := repo.LatestLearningSession(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.75, latest.MetricsAfter.F1)
	assert.Equal(t, 4, latest.MetricsAfter.Support["ORG"])
	assert.Equal(t, 0.5, latest.MetricsBefore.PerTypeF1["ORG"])

	sessions, err := repo.ListLearningSessions(s.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
