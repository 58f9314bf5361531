package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/internal/catalog"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultCategoriesJSON = "[]"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectCard      = "card"
	errorSubjectBenefit   = "benefit"
	errorSubjectOwnership = "ownership"
	errorSubjectEvent     = "redemption"
	errorSubjectMilestone = "milestone"
	errorSubjectSchema    = "schema"
	errorCodeConflict     = "conflict"
	errorCodeDelete       = "delete"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeMigrate      = "migrate"
	errorCodeUpsert       = "upsert"
)

// Store implements the catalog source and redemption ledger using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the tables the store uses.
func (store *Store) Migrate(ctx context.Context) error {
	if err := store.db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return wrapStoreError(errorSubjectSchema, errorCodeMigrate, err)
	}
	return nil
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore *Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

// Import writes a catalog file's cards, benefits and ownerships atomically.
func (store *Store) Import(ctx context.Context, imported catalog.Catalog) error {
	return store.WithTx(ctx, func(ctx context.Context, txStore *Store) error {
		if err := txStore.UpsertCatalog(ctx, imported.Entries); err != nil {
			return err
		}
		for _, ownership := range imported.Ownerships {
			if err := txStore.AssignCard(ctx, ownership); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertCatalog inserts or refreshes card and benefit definitions.
func (store *Store) UpsertCatalog(ctx context.Context, entries []catalog.Entry) error {
	for _, entry := range entries {
		card := Card{
			CardID:    entry.Card.ID.String(),
			Name:      entry.Card.Name,
			AnnualFee: entry.Card.AnnualFee,
		}
		err := store.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "card_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "annual_fee", "updated_at"}),
			}).
			Create(&card).Error
		if err != nil {
			return wrapStoreError(errorSubjectCard, errorCodeUpsert, err)
		}
		for position, definition := range entry.Benefits {
			categories, err := categoriesJSON(definition.Categories)
			if err != nil {
				return wrapStoreError(errorSubjectBenefit, errorCodeInvalid, err)
			}
			benefit := Benefit{
				BenefitID:    definition.ID.String(),
				CardID:       card.CardID,
				Position:     position,
				Name:         definition.Name,
				Value:        definition.Value,
				PeriodMonths: definition.PeriodMonths.Int(),
				ResetType:    definition.ResetType.String(),
				Categories:   categories,
			}
			err = store.db.WithContext(ctx).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: "benefit_id"}},
					DoUpdates: clause.AssignmentColumns([]string{"card_id", "position", "name", "value", "period_months", "reset_type", "categories", "updated_at"}),
				}).
				Create(&benefit).Error
			if err != nil {
				return wrapStoreError(errorSubjectBenefit, errorCodeUpsert, err)
			}
		}
	}
	return nil
}

// AssignCard records that a user owns a catalog card. Assigning a card the
// user already owns updates the anniversary date.
func (store *Store) AssignCard(ctx context.Context, ownership catalog.Ownership) error {
	var known int64
	err := store.db.WithContext(ctx).Model(&Card{}).Where("card_id = ?", ownership.CardID.String()).Count(&known).Error
	if err != nil {
		return wrapStoreError(errorSubjectOwnership, errorCodeLookup, err)
	}
	if known == 0 {
		return wrapStoreError(errorSubjectOwnership, errorCodeLookup, perks.ErrUnknownCard)
	}
	model := UserCard{
		UserID:          ownership.UserID.String(),
		CardID:          ownership.CardID.String(),
		AnniversaryDate: ownership.AnniversaryDate,
	}
	err = store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "card_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"anniversary_date"}),
		}).
		Create(&model).Error
	if err != nil {
		return wrapStoreError(errorSubjectOwnership, errorCodeUpsert, err)
	}
	return nil
}

func (store *Store) ListOwnedCards(ctx context.Context, userID perks.UserID) ([]perks.OwnedCard, error) {
	var ownerships []UserCard
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("created_at ASC, card_id ASC").
		Find(&ownerships).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectOwnership, errorCodeList, err)
	}
	if len(ownerships) == 0 {
		return []perks.OwnedCard{}, nil
	}
	cardIDs := make([]string, 0, len(ownerships))
	for _, ownership := range ownerships {
		cardIDs = append(cardIDs, ownership.CardID)
	}

	var cards []Card
	if err := store.db.WithContext(ctx).Where("card_id IN ?", cardIDs).Find(&cards).Error; err != nil {
		return nil, wrapStoreError(errorSubjectCard, errorCodeList, err)
	}
	cardsByID := make(map[string]Card, len(cards))
	for _, card := range cards {
		cardsByID[card.CardID] = card
	}

	var benefits []Benefit
	err = store.db.WithContext(ctx).
		Where("card_id IN ?", cardIDs).
		Order("card_id ASC, position ASC").
		Find(&benefits).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectBenefit, errorCodeList, err)
	}
	benefitsByCard := make(map[string][]Benefit, len(cards))
	for _, benefit := range benefits {
		benefitsByCard[benefit.CardID] = append(benefitsByCard[benefit.CardID], benefit)
	}

	owned := make([]perks.OwnedCard, 0, len(ownerships))
	for _, ownership := range ownerships {
		card, found := cardsByID[ownership.CardID]
		if !found {
			continue
		}
		ownedCard, err := mapOwnedCard(card, ownership, benefitsByCard[card.CardID])
		if err != nil {
			return nil, wrapStoreError(errorSubjectCard, errorCodeInvalid, err)
		}
		owned = append(owned, ownedCard)
	}
	return owned, nil
}

func (store *Store) ListRedemptions(ctx context.Context, userID perks.UserID) ([]perks.RedemptionEvent, error) {
	var rows []Redemption
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("redemption_date ASC, created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	events := make([]perks.RedemptionEvent, 0, len(rows))
	for _, row := range rows {
		event, err := mapRedemption(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
		}
		events = append(events, event)
	}
	return events, nil
}

// RecordRedemption appends an event. Replaying a record at the same instant
// returns the stored event; a different outcome at that instant fails with
// perks.ErrConflictingRedemption.
func (store *Store) RecordRedemption(ctx context.Context, record perks.RedemptionRecord) (perks.RedemptionEvent, error) {
	row := Redemption{
		UserID:         record.UserID.String(),
		CardID:         record.CardID.String(),
		BenefitID:      record.BenefitID.String(),
		Status:         record.Status.String(),
		ValueRedeemed:  record.ValueRedeemed,
		RemainingValue: record.RemainingValue,
		RedemptionDate: record.RedemptionDate.UTC(),
		ResetDate:      utcPointer(record.ResetDate),
	}
	createErr := store.db.WithContext(ctx).Create(&row).Error
	if createErr == nil {
		return mapRecordedRedemption(row)
	}
	if !isUniqueViolation(createErr) {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeInsert, createErr)
	}

	var existing Redemption
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND benefit_id = ? AND redemption_date = ?", row.UserID, row.BenefitID, row.RedemptionDate).
		Take(&existing).Error
	if err != nil {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeInsert, err)
	}
	event, err := mapRecordedRedemption(existing)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	if !record.SameOutcome(event) {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeConflict,
			fmt.Errorf("%w: %s already recorded as %s at %s", perks.ErrConflictingRedemption, record.BenefitID, event.Status, row.RedemptionDate.Format(time.RFC3339Nano)))
	}
	return event, nil
}

func mapRecordedRedemption(row Redemption) (perks.RedemptionEvent, error) {
	event, err := mapRedemption(row)
	if err != nil {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
	}
	return event, nil
}

func (store *Store) DeleteRedemptions(ctx context.Context, userID perks.UserID, eventIDs []perks.EventID) error {
	if len(eventIDs) == 0 {
		return nil
	}
	identifiers := make([]string, 0, len(eventIDs))
	for _, eventID := range eventIDs {
		identifiers = append(identifiers, eventID.String())
	}
	err := store.db.WithContext(ctx).
		Where("user_id = ? AND redemption_id IN ?", userID.String(), identifiers).
		Delete(&Redemption{}).Error
	if err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeDelete, err)
	}
	return nil
}

// HasRedeemed reports whether the user has ever redeemed a benefit, even one
// whose ledger events were later reverted.
func (store *Store) HasRedeemed(ctx context.Context, userID perks.UserID) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&RedemptionMilestone{}).
		Where("user_id = ?", userID.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectMilestone, errorCodeLookup, err)
	}
	return count > 0, nil
}

// MarkRedeemed records the user's first redemption. Later calls keep the
// original instant.
func (store *Store) MarkRedeemed(ctx context.Context, userID perks.UserID, at time.Time) error {
	milestone := RedemptionMilestone{UserID: userID.String(), FirstRedeemedAt: at.UTC()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&milestone).Error
	if err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeUpsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return perks.WrapError(errorOperationStore, subject, code, err)
}

func mapOwnedCard(card Card, ownership UserCard, benefits []Benefit) (perks.OwnedCard, error) {
	cardID, err := perks.NewCardID(card.CardID)
	if err != nil {
		return perks.OwnedCard{}, err
	}
	owned := perks.OwnedCard{
		Card:            perks.Card{ID: cardID, Name: card.Name, AnnualFee: card.AnnualFee},
		AnniversaryDate: ownership.AnniversaryDate,
		Benefits:        make([]perks.BenefitDefinition, 0, len(benefits)),
	}
	for _, row := range benefits {
		definition, err := mapBenefit(row)
		if err != nil {
			return perks.OwnedCard{}, err
		}
		owned.Benefits = append(owned.Benefits, definition)
	}
	return owned, nil
}

func mapBenefit(row Benefit) (perks.BenefitDefinition, error) {
	benefitID, err := perks.NewBenefitID(row.BenefitID)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	period, err := perks.NewPeriodMonths(row.PeriodMonths)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	resetType, err := perks.ParseResetType(row.ResetType)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	var categories []string
	if len(row.Categories) > 0 {
		if err := json.Unmarshal(row.Categories, &categories); err != nil {
			return perks.BenefitDefinition{}, err
		}
	}
	return perks.BenefitDefinition{
		ID:           benefitID,
		Name:         row.Name,
		Value:        row.Value,
		PeriodMonths: period,
		ResetType:    resetType,
		Categories:   categories,
	}, nil
}

func mapRedemption(row Redemption) (perks.RedemptionEvent, error) {
	eventID, err := perks.NewEventID(row.RedemptionID)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	benefitID, err := perks.NewBenefitID(row.BenefitID)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	status, err := perks.ParseRedemptionStatus(row.Status)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	return perks.NewRedemptionEvent(eventID, benefitID, row.RedemptionDate.UTC(), utcPointer(row.ResetDate), status, row.ValueRedeemed, row.RemainingValue)
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

func categoriesJSON(categories []string) (datatypes.JSON, error) {
	if len(categories) == 0 {
		return datatypes.JSON([]byte(defaultCategoriesJSON)), nil
	}
	encoded, err := json.Marshal(categories)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(encoded), nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
