package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	redisKeyPrefix = "perks:catalog"
	redisScanCount = 100
)

// RedisCache shares owned cards between processes through Redis.
type RedisCache struct {
	source perks.CatalogSource
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps source with a Redis-backed TTL cache.
func NewRedisCache(source perks.CatalogSource, client *redis.Client, ttl time.Duration) (*RedisCache, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidCacheConfig)
	}
	if client == nil {
		return nil, fmt.Errorf("%w: redis client is required", ErrInvalidCacheConfig)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive", ErrInvalidCacheConfig)
	}
	return &RedisCache{source: source, client: client, ttl: ttl}, nil
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCacheConfig, err)
	}
	return redis.NewClient(options), nil
}

// ListOwnedCards serves from Redis when possible. Redis failures degrade to
// the wrapped source.
func (cache *RedisCache) ListOwnedCards(ctx context.Context, userID perks.UserID) ([]perks.OwnedCard, error) {
	key := cacheKey(redisKeyPrefix, userID.String())
	payload, err := cache.client.Get(ctx, key).Bytes()
	if err == nil {
		if cards, decodeErr := decodeCards(payload); decodeErr == nil {
			return cards, nil
		}
	}
	if err != nil && !errors.Is(err, redis.Nil) {
		return cache.source.ListOwnedCards(ctx, userID)
	}

	cards, err := cache.source.ListOwnedCards(ctx, userID)
	if err != nil {
		return nil, err
	}
	if encoded, encodeErr := encodeCards(cards); encodeErr == nil {
		cache.client.Set(ctx, key, encoded, cache.ttl)
	}
	return cards, nil
}

func (cache *RedisCache) Invalidate(ctx context.Context, userID perks.UserID) error {
	return cache.client.Del(ctx, cacheKey(redisKeyPrefix, userID.String())).Err()
}

func (cache *RedisCache) Clear(ctx context.Context) error {
	iterator := cache.client.Scan(ctx, 0, redisKeyPrefix+":*", redisScanCount).Iterator()
	var keys []string
	for iterator.Next(ctx) {
		keys = append(keys, iterator.Val())
	}
	if err := iterator.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return cache.client.Del(ctx, keys...).Err()
}

type cachedBenefit struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Value        decimal.Decimal `json:"value"`
	PeriodMonths int             `json:"period_months"`
	ResetType    string          `json:"reset_type"`
	Categories   []string        `json:"categories,omitempty"`
}

type cachedCard struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	AnnualFee       decimal.Decimal `json:"annual_fee"`
	AnniversaryDate *time.Time      `json:"anniversary_date,omitempty"`
	Benefits        []cachedBenefit `json:"benefits"`
}

func encodeCards(cards []perks.OwnedCard) ([]byte, error) {
	cached := make([]cachedCard, 0, len(cards))
	for _, card := range cards {
		entry := cachedCard{
			ID:              card.Card.ID.String(),
			Name:            card.Card.Name,
			AnnualFee:       card.Card.AnnualFee,
			AnniversaryDate: card.AnniversaryDate,
			Benefits:        make([]cachedBenefit, 0, len(card.Benefits)),
		}
		for _, benefit := range card.Benefits {
			entry.Benefits = append(entry.Benefits, cachedBenefit{
				ID:           benefit.ID.String(),
				Name:         benefit.Name,
				Value:        benefit.Value,
				PeriodMonths: benefit.PeriodMonths.Int(),
				ResetType:    benefit.ResetType.String(),
				Categories:   benefit.Categories,
			})
		}
		cached = append(cached, entry)
	}
	return json.Marshal(cached)
}

func decodeCards(payload []byte) ([]perks.OwnedCard, error) {
	var cached []cachedCard
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, err
	}
	cards := make([]perks.OwnedCard, 0, len(cached))
	for _, entry := range cached {
		cardID, err := perks.NewCardID(entry.ID)
		if err != nil {
			return nil, err
		}
		card := perks.OwnedCard{
			Card:            perks.Card{ID: cardID, Name: entry.Name, AnnualFee: entry.AnnualFee},
			AnniversaryDate: entry.AnniversaryDate,
			Benefits:        make([]perks.BenefitDefinition, 0, len(entry.Benefits)),
		}
		for _, cachedBenefit := range entry.Benefits {
			benefit, err := benefitFromFields(cachedBenefit.ID, cachedBenefit.Name, cachedBenefit.Value, cachedBenefit.PeriodMonths, cachedBenefit.ResetType, cachedBenefit.Categories)
			if err != nil {
				return nil, err
			}
			card.Benefits = append(card.Benefits, benefit)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func benefitFromFields(rawID string, name string, value decimal.Decimal, periodMonths int, rawResetType string, categories []string) (perks.BenefitDefinition, error) {
	benefitID, err := perks.NewBenefitID(rawID)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	if value.Sign() < 0 {
		return perks.BenefitDefinition{}, fmt.Errorf("%w: benefit %s value %s", perks.ErrInvalidMoney, rawID, value)
	}
	period, err := perks.NewPeriodMonths(periodMonths)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	resetType, err := perks.ParseResetType(rawResetType)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	return perks.BenefitDefinition{
		ID:           benefitID,
		Name:         name,
		Value:        value,
		PeriodMonths: period,
		ResetType:    resetType,
		Categories:   append([]string(nil), categories...),
	}, nil
}
