package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Scenario is a labelling domain with its own entity taxonomy
type Scenario struct {
	ID          int64      `json:"id" db:"id"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	EntityTypes StringList `json:"entity_types" db:"entity_types"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	IsBuiltin   bool       `json:"is_builtin" db:"is_builtin"`
}

// Recognizes reports whether label belongs to the scenario taxonomy.
// An empty taxonomy accepts every label.
func (s *Scenario) Recognizes(label string) bool {
	if len(s.EntityTypes) == 0 {
		return true
	}
	for _, t := range s.EntityTypes {
		if t == label {
			return true
		}
	}
	return false
}

// StringList is stored as a JSON array column
type StringList []string

// Value implements driver.Valuer
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (l *StringList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

func scanJSON(src interface{}, dst interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}
