package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/trip-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

var vectorColumns = []string{"id", "text", "preferences", "activities", "embedding"}

// vectorRow flattens a PreferenceVector into column order, JSON-encoding
// the list columns.
func vectorRow(v model.PreferenceVector) ([]any, error) {
	prefs, err := json.Marshal(nonNilStrings(v.Preferences))
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal preferences")
	}
	acts, err := json.Marshal(nonNilStrings(v.Activities))
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal activities")
	}
	emb, err := json.Marshal(v.Embedding)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal embedding")
	}
	return []any{v.ID, v.Text, string(prefs), string(acts), string(emb)}, nil
}

func decodeVector(id, text string, prefs, acts, emb []byte) (model.PreferenceVector, error) {
	v := model.PreferenceVector{ID: id, Text: text}
	if err := json.Unmarshal(prefs, &v.Preferences); err != nil {
		return v, eris.Wrapf(err, "store: unmarshal preferences for %s", id)
	}
	if err := json.Unmarshal(acts, &v.Activities); err != nil {
		return v, eris.Wrapf(err, "store: unmarshal activities for %s", id)
	}
	if err := json.Unmarshal(emb, &v.Embedding); err != nil {
		return v, eris.Wrapf(err, "store: unmarshal embedding for %s", id)
	}
	return v, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
