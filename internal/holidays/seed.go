package holidays

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salonbook/backend/internal/domain"
)

//go:embed seed_it.json
var defaultSeed []byte

type seedDocument struct {
	Festivita []seedEntry `json:"festivita"`
}

type seedEntry struct {
	Data       string `json:"data"`
	Nome       string `json:"nome"`
	Ricorrente bool   `json:"ricorrente"`
}

// ParseSeed reads the static fallback document. An empty list is an error: a
// seed that yields no facts would silently disable holiday detection.
func ParseSeed(data []byte) ([]domain.Holiday, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var doc seedDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parse holiday seed: %w", err)
	}
	if len(doc.Festivita) == 0 {
		return nil, fmt.Errorf("parse holiday seed: no entries")
	}

	out := make([]domain.Holiday, 0, len(doc.Festivita))
	for i, e := range doc.Festivita {
		d, err := time.Parse(time.DateOnly, strings.TrimSpace(e.Data))
		if err != nil {
			return nil, fmt.Errorf("parse holiday seed: entry %d: %w", i, err)
		}
		if strings.TrimSpace(e.Nome) == "" {
			return nil, fmt.Errorf("parse holiday seed: entry %d: name is required", i)
		}
		out = append(out, domain.Holiday{Date: d, Name: e.Nome, Recurring: e.Ricorrente})
	}
	return out, nil
}
