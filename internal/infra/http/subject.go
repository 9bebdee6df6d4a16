package http

import (
	"bytes"
	"encoding/json"
	"errors"

	"receipts/internal/infra/score"
)

var errSubjectType = errors.New("subject must be a string or an array of numbers")

// Subject accepts either a JSON string or an array of numbers. Arrays are
// stored in the comma separated form the entropy scorer parses.
type Subject string

func (s *Subject) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errSubjectType
	}
	switch data[0] {
	case '"':
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*s = Subject(text)
		return nil
	case '[':
		var series []float64
		if err := json.Unmarshal(data, &series); err != nil {
			return errSubjectType
		}
		*s = Subject(score.FormatSeries(series))
		return nil
	default:
		return errSubjectType
	}
}
