package studyguide

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/calebmoss/berea/pkg/fingerprint"
)

// CurrentSchemaVersion is the version written by [Encode]. Version 1 predates
// stable entry ids; version 2 requires them.
const CurrentSchemaVersion = 2

// ErrSchemaVersion is returned by [Decode] for versions newer than this build
// understands.
var ErrSchemaVersion = errors.New("studyguide: unsupported schema version")

// Decode parses a persisted study-guide payload, migrating old schema
// versions forward. All version differences are absorbed here: callers always
// receive a guide at [CurrentSchemaVersion], with every quote and insight
// carrying a stable id and suggested references deduplicated.
func Decode(data []byte) (*StudyGuide, error) {
	var g StudyGuide
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("studyguide: decode: %w", err)
	}

	switch g.SchemaVersion {
	case 0, 1:
		migrateV1(&g)
	case CurrentSchemaVersion:
	default:
		return nil, fmt.Errorf("studyguide: version %d: %w", g.SchemaVersion, ErrSchemaVersion)
	}

	g.DedupSuggested()
	return &g, nil
}

// Encode serializes the guide at the current schema version.
func Encode(g *StudyGuide) ([]byte, error) {
	g.SchemaVersion = CurrentSchemaVersion
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("studyguide: encode: %w", err)
	}
	return data, nil
}

// migrateV1 lifts a version-1 guide to version 2. V1 entries carried no
// stable ids, so ids are derived from content fingerprints: re-migrating the
// same payload always yields the same ids.
func migrateV1(g *StudyGuide) {
	for i := range g.Quotes {
		if g.Quotes[i].ID == "" {
			g.Quotes[i].ID = fingerprint.New(g.SermonID, "quote", g.Quotes[i].Text)
		}
	}
	for i := range g.Insights {
		if g.Insights[i].ID == "" {
			ins := &g.Insights[i]
			ins.ID = fingerprint.New(g.SermonID, "insight", ins.Title, ins.Body)
		}
	}
	g.SchemaVersion = CurrentSchemaVersion
}
