// Package catalog caches the per-user card catalog and loads catalog files.
package catalog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
)

const (
	// DefaultTTL bounds how long a user's owned cards are served from cache.
	DefaultTTL = 10 * time.Minute
)

var (
	ErrInvalidCacheConfig = errors.New("catalog: invalid cache config")
	ErrInvalidCatalogFile = errors.New("catalog: invalid catalog file")
)

// Cache is a catalog source with explicit invalidation.
type Cache interface {
	perks.CatalogSource
	Invalidate(ctx context.Context, userID perks.UserID) error
	Clear(ctx context.Context) error
}

// Entry is one card of the reference catalog with its benefit definitions.
type Entry struct {
	Card     perks.Card
	Benefits []perks.BenefitDefinition
}

// Ownership assigns a catalog card to a user.
type Ownership struct {
	UserID          perks.UserID
	CardID          perks.CardID
	AnniversaryDate *time.Time
}

// Catalog is the content of a catalog file.
type Catalog struct {
	Entries    []Entry
	Ownerships []Ownership
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, trimmed)
	}
	return strings.Join(values, ":")
}

func cloneCards(cards []perks.OwnedCard) []perks.OwnedCard {
	cloned := make([]perks.OwnedCard, len(cards))
	for index, card := range cards {
		cloned[index] = card
		cloned[index].Benefits = append([]perks.BenefitDefinition(nil), card.Benefits...)
	}
	return cloned
}
