package service

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"entity-learning-service/internal/models"
)

// Export formats
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// ExportRecord is one labelled text in training-set form
type ExportRecord struct {
	Text     string                    `json:"text"`
	Entities []models.EntityAnnotation `json:"entities"`
	Source   string                    `json:"source"`
	Verified bool                      `json:"verified"`
}

// Export writes the scenario's annotated texts. CSV emits one row per entity span and
// one row with empty span columns for texts without entities.
func (l *Learner) Export(w io.Writer, scenarioID int64, format string, verifiedOnly bool) error {
	texts, err := l.store.ListAnnotatedTexts(scenarioID, verifiedOnly)
	if err != nil {
		return err
	}

	switch format {
	case FormatJSON, "":
		records := make([]ExportRecord, 0, len(texts))
		for _, t := range texts {
			entities := []models.EntityAnnotation(t.Annotations)
			if entities == nil {
				entities = []models.EntityAnnotation{}
			}
			records = append(records, ExportRecord{
				Text:     t.RawText,
				Entities: entities,
				Source:   t.Source,
				Verified: t.IsVerified,
			})
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)

	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write([]string{"text_id", "text", "start_index", "end_index", "entity_type", "entity_text", "verified"}); err != nil {
			return err
		}
		for _, t := range texts {
			id := strconv.FormatInt(t.ID, 10)
			verified := strconv.FormatBool(t.IsVerified)
			if len(t.Annotations) == 0 {
				if err := cw.Write([]string{id, t.RawText, "", "", "", "", verified}); err != nil {
					return err
				}
				continue
			}
			for _, a := range t.Annotations {
				row := []string{id, t.RawText, strconv.Itoa(a.StartIndex), strconv.Itoa(a.EndIndex), a.EntityType, a.Text, verified}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()

	default:
		return fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, format)
	}
}
