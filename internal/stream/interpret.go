package stream

import (
	"encoding/json"
	"math"

	"github.com/doctrans/doctrans/internal/model"
)

// wire keys of a progress record
const (
	keyProgress    = "progress"
	keyStatus      = "status"
	keyAPICalls    = "apiCalls"
	keyCached      = "cached"
	keyMessage     = "message"
	keySummary     = "summary"
	keyDownloadURL = "downloadUrl"
)

// Interpret parses one complete line. A line which is not a JSON object
// becomes a Malformed record carrying the raw text. Recognized keys are
// projected into the record, unknown keys are ignored, a null value or a
// value of the wrong type counts as absent.
func Interpret(line string) model.Record {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil || fields == nil {
		return model.Record{Malformed: true, Raw: line}
	}

	rec := model.Record{
		Progress:    number(fields[keyProgress]),
		Status:      text(fields[keyStatus]),
		APICalls:    number(fields[keyAPICalls]),
		Cached:      number(fields[keyCached]),
		Message:     text(fields[keyMessage]),
		Summary:     text(fields[keySummary]),
		DownloadURL: text(fields[keyDownloadURL]),
		Raw:         line,
	}
	// an empty url can't be downloaded and must not complete the run
	if rec.DownloadURL != nil && *rec.DownloadURL == "" {
		rec.DownloadURL = nil
	}
	return rec
}

func text(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return s
}

// number accepts any JSON number, fractions are truncated.
func number(raw json.RawMessage) *int {
	if raw == nil {
		return nil
	}
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil
	}
	if math.IsNaN(*f) || math.IsInf(*f, 0) || math.Abs(*f) > math.MaxInt32 {
		return nil
	}
	i := int(*f)
	return &i
}
