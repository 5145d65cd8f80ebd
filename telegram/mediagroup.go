// Copyright (c) 2025 @AmarnathCJD

package telegram

import (
	"context"
	"encoding/json"
	"time"

	"github.com/amarnathcjd/hybridgram/internal/cache"
	"github.com/amarnathcjd/hybridgram/internal/utils"
)

const MediaGroupTTL = 10 * time.Second

// MediaGroupGrouper collapses albums received in one getUpdates batch. The
// first update of each album is dispatched and the photos of the whole
// album are cached for PHOTO_MEDIA_GROUP routes.
type MediaGroupGrouper struct {
	store cache.Store
	ttl   time.Duration
	log   *utils.Logger
}

func NewMediaGroupGrouper(store cache.Store, log Logger) *MediaGroupGrouper {
	return &MediaGroupGrouper{
		store: store,
		ttl:   MediaGroupTTL,
		log:   internalLogger(log).WithPrefix("hybridgram [media]"),
	}
}

func mediaGroupKey(id string) string { return "media_group_items_" + id }

// Group returns the updates of batch that should be dispatched, in batch
// order. Updates outside an album are always kept.
func (g *MediaGroupGrouper) Group(ctx context.Context, batch []Update) []Update {
	var (
		out    = make([]Update, 0, len(batch))
		seen   = make(map[string]bool)
		photos = make(map[string][][]PhotoSize)
		order  []string
	)
	for _, u := range batch {
		m := u.Message
		if m == nil || m.MediaGroupID == "" {
			out = append(out, u)
			continue
		}
		if len(m.Photo) > 0 {
			photos[m.MediaGroupID] = append(photos[m.MediaGroupID], m.Photo)
		}
		if seen[m.MediaGroupID] {
			continue
		}
		seen[m.MediaGroupID] = true
		order = append(order, m.MediaGroupID)
		out = append(out, u)
	}

	for _, id := range order {
		if len(photos[id]) == 0 {
			continue
		}
		if err := g.Remember(ctx, id, photos[id]); err != nil {
			g.log.WithError(err).WithField("media_group_id", id).Warn("caching media group")
		}
	}
	return out
}

// Remember stores the photos of an album.
func (g *MediaGroupGrouper) Remember(ctx context.Context, groupID string, photos [][]PhotoSize) error {
	raw, err := json.Marshal(photos)
	if err != nil {
		return err
	}
	return g.store.Set(ctx, mediaGroupKey(groupID), raw, g.ttl)
}

// GroupedPhotos returns the cached photos of an album, nil when unknown.
func (g *MediaGroupGrouper) GroupedPhotos(ctx context.Context, groupID string) [][]PhotoSize {
	if groupID == "" {
		return nil
	}
	raw, ok, err := g.store.Get(ctx, mediaGroupKey(groupID))
	if err != nil || !ok {
		return nil
	}
	var photos [][]PhotoSize
	if err := json.Unmarshal(raw, &photos); err != nil {
		g.log.WithError(err).WithField("media_group_id", groupID).Debug("unreadable media group entry")
		return nil
	}
	return photos
}
