// Package stats derives aggregate views from record collections. Every
// statistic is recomputed from the full collection on each call; nothing
// is cached or incrementally maintained, so the numbers can never drift
// from the underlying data.
package stats

import (
	"context"
	"encoding/json"

	"github.com/valee-art/ALXIE/pkg/logger"
	"github.com/valee-art/ALXIE/pkg/models"
	"github.com/valee-art/ALXIE/pkg/store"
)

// moods enumerates the known moods for zero-filling the frequency map.
var moods = []models.Mood{models.MoodSad, models.MoodAnxious, models.MoodAngry, models.MoodTired, models.MoodLonely}

// MoodFrequency counts vents per mood over the whole vent collection.
// Vents without a mood tag are excluded. Every known mood is a key in the
// result, zero-valued when unused; ordering is the caller's concern.
func MoodFrequency(ctx context.Context, adapter store.Adapter) (map[models.Mood]int, error) {
	raw, err := adapter.List(ctx, store.KindVent)
	if err != nil {
		return nil, err
	}
	counts := make(map[models.Mood]int, len(moods))
	for _, m := range moods {
		counts[m] = 0
	}
	for _, r := range raw {
		var vent models.Vent
		if err := json.Unmarshal(r, &vent); err != nil {
			logger.Warn("stats_vent_decode_failed", "error", err)
			continue
		}
		if vent.Mood == "" {
			continue
		}
		counts[vent.Mood]++
	}
	return counts, nil
}

// ContactFrequency counts contact events per persona. Only personas with
// at least one event appear.
func ContactFrequency(ctx context.Context, adapter store.Adapter) (map[string]int, error) {
	raw, err := adapter.List(ctx, store.KindContact)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for _, r := range raw {
		var ev models.ContactEvent
		if err := json.Unmarshal(r, &ev); err != nil {
			logger.Warn("stats_contact_decode_failed", "error", err)
			continue
		}
		if ev.Persona == "" {
			continue
		}
		counts[ev.Persona]++
	}
	return counts, nil
}
