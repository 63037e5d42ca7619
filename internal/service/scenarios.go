package service

import (
	"fmt"
	"strings"

	"entity-learning-service/internal/models"

	"go.uber.org/zap"
)

// BuiltinScenarios are seeded on startup when the configuration names none
var BuiltinScenarios = []models.Scenario{
	{
		Name:        "general",
		Description: "General named entities",
		EntityTypes: models.StringList{"PERSON", "ORG", "LOCATION", "DATE"},
	},
	{
		Name:        "contacts",
		Description: "Contact details found in messages",
		EntityTypes: models.StringList{"EMAIL", "PHONE", "URL"},
	},
}

// SeedScenarios makes sure every builtin scenario exists
func (l *Learner) SeedScenarios(scenarios []models.Scenario) error {
	for i := range scenarios {
		s := scenarios[i]
		s.IsBuiltin = true
		if _, err := l.store.EnsureScenario(&s); err != nil {
			return fmt.Errorf("failed to seed scenario %q: %w", s.Name, err)
		}
	}
	l.logger.Info("Scenarios seeded", zap.Int("count", len(scenarios)))
	return nil
}

// CreateScenario adds a user-defined scenario
func (l *Learner) CreateScenario(name, description string, entityTypes []string) (*models.Scenario, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: scenario name is required", ErrInvalidInput)
	}
	s := &models.Scenario{
		Name:        name,
		Description: description,
		EntityTypes: models.StringList(normalizeTypes(entityTypes)),
	}
	if err := l.store.AddScenario(s); err != nil {
		return nil, err
	}
	return s, nil
}

func normalizeTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ListScenarios returns all scenarios
func (l *Learner) ListScenarios() ([]*models.Scenario, error) {
	return l.store.ListScenarios()
}

// GetScenario returns one scenario
func (l *Learner) GetScenario(id int64) (*models.Scenario, error) {
	return l.store.GetScenario(id)
}

// DeleteScenario removes a user-defined scenario with its data
func (l *Learner) DeleteScenario(id int64) error {
	return l.store.DeleteScenario(id)
}

// Texts lists stored annotated texts of a scenario
func (l *Learner) Texts(scenarioID int64, verifiedOnly bool) ([]*models.AnnotatedText, error) {
	return l.store.ListAnnotatedTexts(scenarioID, verifiedOnly)
}

// DeleteText removes one annotated text
func (l *Learner) DeleteText(id int64) error {
	return l.store.DeleteAnnotatedText(id)
}
