package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolationCode = "23505"
	errorOperationStore   = "store"
	errorSubjectCard      = "card"
	errorSubjectBenefit   = "benefit"
	errorSubjectEvent     = "redemption"
	errorSubjectMilestone = "milestone"
	errorCodeConflict     = "conflict"
	errorCodeDelete       = "delete"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeUpsert       = "upsert"

	sqlListOwnedCards = `
		select c.card_id, c.name, c.annual_fee::text, uc.anniversary_date
		from user_cards uc
		join cards c on c.card_id = uc.card_id
		where uc.user_id = $1
		order by uc.created_at, uc.card_id
	`

	sqlListOwnedBenefits = `
		select b.benefit_id, b.card_id, b.name, b.value::text, b.period_months, b.reset_type, coalesce(b.categories::text, '[]')
		from benefits b
		join user_cards uc on uc.card_id = b.card_id
		where uc.user_id = $1
		order by b.card_id, b.position
	`

	sqlListRedemptions = `
		select redemption_id::text, benefit_id, status, value_redeemed::text, remaining_value::text, redemption_date, reset_date
		from redemptions
		where user_id = $1
		order by redemption_date, created_at
	`

	sqlInsertRedemption = `
		insert into redemptions(
			redemption_id, user_id, card_id, benefit_id, status, value_redeemed, remaining_value, redemption_date, reset_date, created_at
		)
		values($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9, now())
	`

	sqlSelectRedemptionAt = `
		select redemption_id::text, benefit_id, status, value_redeemed::text, remaining_value::text, redemption_date, reset_date
		from redemptions
		where user_id = $1 and benefit_id = $2 and redemption_date = $3
	`

	sqlHasRedeemed = `
		select exists(select 1 from redemption_milestones where user_id = $1)
	`

	sqlMarkRedeemed = `
		insert into redemption_milestones(user_id, first_redeemed_at)
		values($1, $2)
		on conflict (user_id) do nothing
	`

	sqlDeleteRedemptions = `
		delete from redemptions
		where user_id = $1 and redemption_id::text = any($2)
	`
)

// Store implements the catalog source and redemption ledger using a pgx
// connection pool. It reads the schema the gorm store migrates.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (store *Store) ListOwnedCards(ctx context.Context, userID perks.UserID) ([]perks.OwnedCard, error) {
	rows, err := store.pool.Query(ctx, sqlListOwnedCards, userID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectCard, errorCodeList, err)
	}
	defer rows.Close()

	cards := make([]perks.OwnedCard, 0)
	positions := make(map[perks.CardID]int)
	for rows.Next() {
		var (
			cardIDValue string
			name        string
			annualFee   string
			anniversary *time.Time
		)
		if err := rows.Scan(&cardIDValue, &name, &annualFee, &anniversary); err != nil {
			return nil, wrapStoreError(errorSubjectCard, errorCodeList, err)
		}
		cardID, err := perks.NewCardID(cardIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCard, errorCodeInvalid, err)
		}
		fee, err := perks.NewMoney(annualFee)
		if err != nil {
			return nil, wrapStoreError(errorSubjectCard, errorCodeInvalid, err)
		}
		positions[cardID] = len(cards)
		cards = append(cards, perks.OwnedCard{
			Card:            perks.Card{ID: cardID, Name: name, AnnualFee: fee},
			AnniversaryDate: utcPointer(anniversary),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectCard, errorCodeList, err)
	}

	benefitRows, err := store.pool.Query(ctx, sqlListOwnedBenefits, userID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectBenefit, errorCodeList, err)
	}
	defer benefitRows.Close()
	for benefitRows.Next() {
		var (
			benefitIDValue string
			cardIDValue    string
			name           string
			value          string
			periodMonths   int
			resetType      string
			categoriesJSON string
		)
		if err := benefitRows.Scan(&benefitIDValue, &cardIDValue, &name, &value, &periodMonths, &resetType, &categoriesJSON); err != nil {
			return nil, wrapStoreError(errorSubjectBenefit, errorCodeList, err)
		}
		cardID, err := perks.NewCardID(cardIDValue)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBenefit, errorCodeInvalid, err)
		}
		position, owned := positions[cardID]
		if !owned {
			continue
		}
		benefit, err := buildBenefit(benefitIDValue, name, value, periodMonths, resetType, categoriesJSON)
		if err != nil {
			return nil, wrapStoreError(errorSubjectBenefit, errorCodeInvalid, err)
		}
		cards[position].Benefits = append(cards[position].Benefits, benefit)
	}
	if err := benefitRows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectBenefit, errorCodeList, err)
	}
	return cards, nil
}

func (store *Store) ListRedemptions(ctx context.Context, userID perks.UserID) ([]perks.RedemptionEvent, error) {
	rows, err := store.pool.Query(ctx, sqlListRedemptions, userID.String())
	if err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	defer rows.Close()

	events := make([]perks.RedemptionEvent, 0)
	for rows.Next() {
		event, err := scanRedemption(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	return events, nil
}

// RecordRedemption appends an event. Replaying a record at the same instant
// returns the stored event; a different outcome at that instant fails with
// perks.ErrConflictingRedemption.
func (store *Store) RecordRedemption(ctx context.Context, record perks.RedemptionRecord) (perks.RedemptionEvent, error) {
	redemptionDate := record.RedemptionDate.UTC()
	_, insertErr := store.pool.Exec(ctx, sqlInsertRedemption,
		uuid.NewString(),
		record.UserID.String(),
		record.CardID.String(),
		record.BenefitID.String(),
		record.Status.String(),
		record.ValueRedeemed.String(),
		record.RemainingValue.String(),
		redemptionDate,
		utcPointer(record.ResetDate),
	)
	if insertErr != nil && !isUniqueViolation(insertErr) {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeInsert, insertErr)
	}
	row := store.pool.QueryRow(ctx, sqlSelectRedemptionAt, record.UserID.String(), record.BenefitID.String(), redemptionDate)
	event, err := scanRedemption(row)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	if insertErr != nil && !record.SameOutcome(event) {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeConflict,
			fmt.Errorf("%w: %s already recorded as %s at %s", perks.ErrConflictingRedemption, record.BenefitID, event.Status, redemptionDate.Format(time.RFC3339Nano)))
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
	if _, err := store.pool.Exec(ctx, sqlDeleteRedemptions, userID.String(), identifiers); err != nil {
		return wrapStoreError(errorSubjectEvent, errorCodeDelete, err)
	}
	return nil
}

// HasRedeemed reports whether the user has ever redeemed a benefit, even one
// whose ledger events were later reverted.
func (store *Store) HasRedeemed(ctx context.Context, userID perks.UserID) (bool, error) {
	var redeemed bool
	if err := store.pool.QueryRow(ctx, sqlHasRedeemed, userID.String()).Scan(&redeemed); err != nil {
		return false, wrapStoreError(errorSubjectMilestone, errorCodeLookup, err)
	}
	return redeemed, nil
}

// MarkRedeemed records the user's first redemption. Later calls keep the
// original instant.
func (store *Store) MarkRedeemed(ctx context.Context, userID perks.UserID, at time.Time) error {
	if _, err := store.pool.Exec(ctx, sqlMarkRedeemed, userID.String(), at.UTC()); err != nil {
		return wrapStoreError(errorSubjectMilestone, errorCodeUpsert, err)
	}
	return nil
}

func scanRedemption(row pgx.Row) (perks.RedemptionEvent, error) {
	var (
		eventIDValue   string
		benefitIDValue string
		statusValue    string
		valueRedeemed  string
		remainingValue string
		redemptionDate time.Time
		resetDate      *time.Time
	)
	if err := row.Scan(&eventIDValue, &benefitIDValue, &statusValue, &valueRedeemed, &remainingValue, &redemptionDate, &resetDate); err != nil {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeList, err)
	}
	event, err := buildRedemption(eventIDValue, benefitIDValue, statusValue, valueRedeemed, remainingValue, redemptionDate, resetDate)
	if err != nil {
		return perks.RedemptionEvent{}, wrapStoreError(errorSubjectEvent, errorCodeInvalid, err)
	}
	return event, nil
}

func buildRedemption(eventIDValue, benefitIDValue, statusValue, valueRedeemed, remainingValue string, redemptionDate time.Time, resetDate *time.Time) (perks.RedemptionEvent, error) {
	eventID, err := perks.NewEventID(eventIDValue)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	benefitID, err := perks.NewBenefitID(benefitIDValue)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	status, err := perks.ParseRedemptionStatus(statusValue)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	redeemed, err := perks.NewMoney(valueRedeemed)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	remaining, err := perks.NewMoney(remainingValue)
	if err != nil {
		return perks.RedemptionEvent{}, err
	}
	return perks.NewRedemptionEvent(eventID, benefitID, redemptionDate.UTC(), utcPointer(resetDate), status, redeemed, remaining)
}

func buildBenefit(benefitIDValue, name, value string, periodMonths int, resetTypeValue, categoriesJSON string) (perks.BenefitDefinition, error) {
	benefitID, err := perks.NewBenefitID(benefitIDValue)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	amount, err := perks.NewMoney(value)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	period, err := perks.NewPeriodMonths(periodMonths)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	resetType, err := perks.ParseResetType(resetTypeValue)
	if err != nil {
		return perks.BenefitDefinition{}, err
	}
	var categories []string
	if err := json.Unmarshal([]byte(categoriesJSON), &categories); err != nil {
		return perks.BenefitDefinition{}, err
	}
	return perks.BenefitDefinition{
		ID:           benefitID,
		Name:         name,
		Value:        amount,
		PeriodMonths: period,
		ResetType:    resetType,
		Categories:   categories,
	}, nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	converted := value.UTC()
	return &converted
}

func wrapStoreError(subject string, code string, err error) error {
	return perks.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
