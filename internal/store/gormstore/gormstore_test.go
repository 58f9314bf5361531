package gormstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/internal/catalog"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(test *testing.T) *Store {
	test.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(test, err)
	sqlDB, err := db.DB()
	require.NoError(test, err)
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })

	store := New(db)
	require.NoError(test, store.Migrate(context.Background()))
	return store
}

func mustUserID(test *testing.T, raw string) perks.UserID {
	test.Helper()
	userID, err := perks.NewUserID(raw)
	require.NoError(test, err)
	return userID
}

func mustCardID(test *testing.T, raw string) perks.CardID {
	test.Helper()
	cardID, err := perks.NewCardID(raw)
	require.NoError(test, err)
	return cardID
}

func mustBenefitID(test *testing.T, raw string) perks.BenefitID {
	test.Helper()
	benefitID, err := perks.NewBenefitID(raw)
	require.NoError(test, err)
	return benefitID
}

func sampleEntries(test *testing.T) []catalog.Entry {
	test.Helper()
	return []catalog.Entry{
		{
			Card: perks.Card{ID: mustCardID(test, "platinum"), Name: "Platinum", AnnualFee: decimal.RequireFromString("695")},
			Benefits: []perks.BenefitDefinition{
				{ID: mustBenefitID(test, "uber"), Name: "Uber Cash", Value: decimal.RequireFromString("15"), PeriodMonths: perks.PeriodMonthly, ResetType: perks.ResetCalendar, Categories: []string{"rideshare"}},
				{ID: mustBenefitID(test, "saks"), Name: "Saks", Value: decimal.RequireFromString("50"), PeriodMonths: perks.PeriodSemiAnnual, ResetType: perks.ResetCalendar},
				{ID: mustBenefitID(test, "clear"), Name: "CLEAR", Value: decimal.RequireFromString("189"), PeriodMonths: perks.PeriodAnnual, ResetType: perks.ResetAnniversary},
			},
		},
		{
			Card: perks.Card{ID: mustCardID(test, "gold"), Name: "Gold", AnnualFee: decimal.RequireFromString("250")},
			Benefits: []perks.BenefitDefinition{
				{ID: mustBenefitID(test, "dining"), Name: "Dining", Value: decimal.RequireFromString("10"), PeriodMonths: perks.PeriodMonthly, ResetType: perks.ResetCalendar},
			},
		},
	}
}

func TestImportAndListOwnedCards(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	userID := mustUserID(test, "user-1")
	anniversary := time.Date(2023, time.March, 10, 0, 0, 0, 0, time.UTC)

	err := store.Import(ctx, catalog.Catalog{
		Entries: sampleEntries(test),
		Ownerships: []catalog.Ownership{
			{UserID: userID, CardID: mustCardID(test, "platinum"), AnniversaryDate: &anniversary},
		},
	})
	require.NoError(test, err)

	cards, err := store.ListOwnedCards(ctx, userID)
	require.NoError(test, err)
	require.Len(test, cards, 1)
	card := cards[0]
	assert.Equal(test, "platinum", card.Card.ID.String())
	assert.True(test, card.Card.AnnualFee.Equal(decimal.NewFromInt(695)))
	require.NotNil(test, card.AnniversaryDate)
	assert.True(test, card.AnniversaryDate.Equal(anniversary))
	require.Len(test, card.Benefits, 3)
	assert.Equal(test, []string{"uber", "saks", "clear"}, []string{card.Benefits[0].ID.String(), card.Benefits[1].ID.String(), card.Benefits[2].ID.String()})
	assert.Equal(test, []string{"rideshare"}, card.Benefits[0].Categories)
	assert.Equal(test, perks.ResetAnniversary, card.Benefits[2].ResetType)
	assert.Equal(test, perks.PeriodSemiAnnual, card.Benefits[1].PeriodMonths)

	others, err := store.ListOwnedCards(ctx, mustUserID(test, "nobody"))
	require.NoError(test, err)
	assert.Empty(test, others)
}

func TestUpsertCatalogRefreshesDefinitions(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	entries := sampleEntries(test)
	require.NoError(test, store.UpsertCatalog(ctx, entries))

	entries[0].Card.AnnualFee = decimal.RequireFromString("895")
	entries[0].Benefits[0].Value = decimal.RequireFromString("20")
	require.NoError(test, store.UpsertCatalog(ctx, entries))

	userID := mustUserID(test, "user-1")
	require.NoError(test, store.AssignCard(ctx, catalog.Ownership{UserID: userID, CardID: entries[0].Card.ID}))
	cards, err := store.ListOwnedCards(ctx, userID)
	require.NoError(test, err)
	require.Len(test, cards, 1)
	assert.True(test, cards[0].Card.AnnualFee.Equal(decimal.NewFromInt(895)))
	assert.True(test, cards[0].Benefits[0].Value.Equal(decimal.NewFromInt(20)))
}

func TestAssignCard(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	require.NoError(test, store.UpsertCatalog(ctx, sampleEntries(test)))
	userID := mustUserID(test, "user-1")

	err := store.AssignCard(ctx, catalog.Ownership{UserID: userID, CardID: mustCardID(test, "missing")})
	require.True(test, errors.Is(err, perks.ErrUnknownCard), "expected ErrUnknownCard, got %v", err)

	require.NoError(test, store.AssignCard(ctx, catalog.Ownership{UserID: userID, CardID: mustCardID(test, "gold")}))
	anniversary := time.Date(2022, time.July, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(test, store.AssignCard(ctx, catalog.Ownership{UserID: userID, CardID: mustCardID(test, "gold"), AnniversaryDate: &anniversary}))

	cards, err := store.ListOwnedCards(ctx, userID)
	require.NoError(test, err)
	require.Len(test, cards, 1)
	require.NotNil(test, cards[0].AnniversaryDate)
	assert.True(test, cards[0].AnniversaryDate.Equal(anniversary))
}

func TestRecordListAndDeleteRedemptions(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	userID := mustUserID(test, "user-1")
	resetDate := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.RecordRedemption(ctx, perks.RedemptionRecord{
		UserID:         userID,
		CardID:         mustCardID(test, "platinum"),
		BenefitID:      mustBenefitID(test, "uber"),
		Status:         perks.StatusRedeemed,
		ValueRedeemed:  decimal.RequireFromString("15"),
		RemainingValue: decimal.Zero,
		RedemptionDate: time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC),
		ResetDate:      &resetDate,
	})
	require.NoError(test, err)
	assert.NotEmpty(test, first.EventID.String())

	second, err := store.RecordRedemption(ctx, perks.RedemptionRecord{
		UserID:         userID,
		CardID:         mustCardID(test, "platinum"),
		BenefitID:      mustBenefitID(test, "saks"),
		Status:         perks.StatusPartiallyRedeemed,
		ValueRedeemed:  decimal.RequireFromString("20"),
		RemainingValue: decimal.RequireFromString("30"),
		RedemptionDate: time.Date(2024, time.April, 20, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(test, err)

	_, err = store.RecordRedemption(ctx, perks.RedemptionRecord{
		UserID:         mustUserID(test, "user-2"),
		CardID:         mustCardID(test, "gold"),
		BenefitID:      mustBenefitID(test, "dining"),
		Status:         perks.StatusRedeemed,
		ValueRedeemed:  decimal.RequireFromString("10"),
		RemainingValue: decimal.Zero,
		RedemptionDate: time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(test, err)

	events, err := store.ListRedemptions(ctx, userID)
	require.NoError(test, err)
	require.Len(test, events, 2)
	assert.Equal(test, second.EventID, events[0].EventID)
	assert.Equal(test, first.EventID, events[1].EventID)
	assert.Nil(test, events[0].ResetDate)
	require.NotNil(test, events[1].ResetDate)
	assert.True(test, events[1].ResetDate.Equal(resetDate))
	assert.Equal(test, perks.StatusPartiallyRedeemed, events[0].Status)
	assert.True(test, events[0].RemainingValue.Equal(decimal.NewFromInt(30)))

	require.NoError(test, store.DeleteRedemptions(ctx, mustUserID(test, "user-2"), []perks.EventID{first.EventID}))
	events, err = store.ListRedemptions(ctx, userID)
	require.NoError(test, err)
	require.Len(test, events, 2, "deleting with another user's id must not remove events")

	require.NoError(test, store.DeleteRedemptions(ctx, userID, []perks.EventID{first.EventID}))
	require.NoError(test, store.DeleteRedemptions(ctx, userID, nil))
	events, err = store.ListRedemptions(ctx, userID)
	require.NoError(test, err)
	require.Len(test, events, 1)
	assert.Equal(test, second.EventID, events[0].EventID)
}

func TestRecordRedemptionIsIdempotentPerInstant(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	record := perks.RedemptionRecord{
		UserID:         mustUserID(test, "user-1"),
		CardID:         mustCardID(test, "platinum"),
		BenefitID:      mustBenefitID(test, "uber"),
		Status:         perks.StatusRedeemed,
		ValueRedeemed:  decimal.RequireFromString("15"),
		RemainingValue: decimal.Zero,
		RedemptionDate: time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC),
	}

	first, err := store.RecordRedemption(ctx, record)
	require.NoError(test, err)
	again, err := store.RecordRedemption(ctx, record)
	require.NoError(test, err)
	assert.Equal(test, first.EventID, again.EventID)

	events, err := store.ListRedemptions(ctx, record.UserID)
	require.NoError(test, err)
	assert.Len(test, events, 1)
}

func TestRecordRedemptionRejectsConflictingOutcomeAtSameInstant(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	partial := perks.RedemptionRecord{
		UserID:         mustUserID(test, "user-1"),
		CardID:         mustCardID(test, "platinum"),
		BenefitID:      mustBenefitID(test, "saks"),
		Status:         perks.StatusPartiallyRedeemed,
		ValueRedeemed:  decimal.RequireFromString("40"),
		RemainingValue: decimal.RequireFromString("10"),
		RedemptionDate: time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC),
	}
	_, err := store.RecordRedemption(ctx, partial)
	require.NoError(test, err)

	testCases := []struct {
		name      string
		status    perks.RedemptionStatus
		redeemed  string
		remaining string
	}{
		{name: "upgrade to redeemed", status: perks.StatusRedeemed, redeemed: "50", remaining: "0"},
		{name: "smaller remaining", status: perks.StatusPartiallyRedeemed, redeemed: "45", remaining: "5"},
	}
	for _, testCase := range testCases {
		conflicting := partial
		conflicting.Status = testCase.status
		conflicting.ValueRedeemed = decimal.RequireFromString(testCase.redeemed)
		conflicting.RemainingValue = decimal.RequireFromString(testCase.remaining)

		_, err := store.RecordRedemption(ctx, conflicting)
		require.Error(test, err, testCase.name)
		assert.True(test, errors.Is(err, perks.ErrConflictingRedemption), testCase.name)
		var operationError perks.OperationError
		require.True(test, errors.As(err, &operationError), testCase.name)
		assert.Equal(test, "conflict", operationError.Code(), testCase.name)
	}

	events, err := store.ListRedemptions(ctx, partial.UserID)
	require.NoError(test, err)
	require.Len(test, events, 1)
	assert.Equal(test, perks.StatusPartiallyRedeemed, events[0].Status)
	assert.True(test, events[0].RemainingValue.Equal(decimal.RequireFromString("10")))
}

func TestRedemptionMilestoneOutlivesDeletedEvents(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	ctx := context.Background()
	userID := mustUserID(test, "user-1")
	firstAt := time.Date(2024, time.May, 3, 9, 0, 0, 0, time.UTC)

	redeemed, err := store.HasRedeemed(ctx, userID)
	require.NoError(test, err)
	assert.False(test, redeemed)

	require.NoError(test, store.MarkRedeemed(ctx, userID, firstAt))
	require.NoError(test, store.MarkRedeemed(ctx, userID, firstAt.AddDate(0, 1, 0)))

	redeemed, err = store.HasRedeemed(ctx, userID)
	require.NoError(test, err)
	assert.True(test, redeemed)
	other, err := store.HasRedeemed(ctx, mustUserID(test, "user-2"))
	require.NoError(test, err)
	assert.False(test, other)

	var milestone RedemptionMilestone
	require.NoError(test, store.db.Where("user_id = ?", userID.String()).Take(&milestone).Error)
	assert.True(test, milestone.FirstRedeemedAt.Equal(firstAt))
}

func TestStoreErrorsCarryOperationCodes(test *testing.T) {
	test.Parallel()

	store := newTestStore(test)
	sqlDB, err := store.db.DB()
	require.NoError(test, err)
	require.NoError(test, sqlDB.Close())

	_, err = store.ListRedemptions(context.Background(), mustUserID(test, "user-1"))
	require.Error(test, err)
	var operationError perks.OperationError
	require.True(test, errors.As(err, &operationError))
	assert.Equal(test, "store", operationError.Operation())
	assert.Equal(test, "redemption", operationError.Subject())
	assert.Equal(test, "list", operationError.Code())
}
