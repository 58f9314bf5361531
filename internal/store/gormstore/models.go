package gormstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Card represents the cards table.
type Card struct {
	CardID    string          `gorm:"primaryKey"`
	Name      string          `gorm:"not null"`
	AnnualFee decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (Card) TableName() string { return "cards" }

// Benefit mirrors the benefits table.
type Benefit struct {
	BenefitID    string          `gorm:"primaryKey"`
	CardID       string          `gorm:"not null;index:idx_benefits_card_position,priority:1"`
	Position     int             `gorm:"not null;index:idx_benefits_card_position,priority:2"`
	Name         string          `gorm:"not null"`
	Value        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	PeriodMonths int             `gorm:"not null"`
	ResetType    string          `gorm:"not null"`
	Categories   datatypes.JSON  `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

func (Benefit) TableName() string { return "benefits" }

// UserCard mirrors the user_cards ownership table.
type UserCard struct {
	UserID          string     `gorm:"primaryKey"`
	CardID          string     `gorm:"primaryKey"`
	AnniversaryDate *time.Time `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
}

func (UserCard) TableName() string { return "user_cards" }

// Redemption mirrors the redemptions ledger table.
type Redemption struct {
	RedemptionID   string          `gorm:"type:uuid;primaryKey"`
	UserID         string          `gorm:"not null;index:idx_redemptions_user_date,priority:1;index:uniq_redemptions_commit,unique,priority:1"`
	CardID         string          `gorm:"not null"`
	BenefitID      string          `gorm:"not null;index:uniq_redemptions_commit,unique,priority:2"`
	Status         string          `gorm:"not null"`
	ValueRedeemed  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RemainingValue decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	RedemptionDate time.Time       `gorm:"not null;index:idx_redemptions_user_date,priority:2;index:uniq_redemptions_commit,unique,priority:3"`
	ResetDate      *time.Time      `gorm:""`
	CreatedAt      time.Time       `gorm:"not null"`
}

func (Redemption) TableName() string { return "redemptions" }

func (redemption *Redemption) BeforeCreate(tx *gorm.DB) error {
	if redemption.RedemptionID == "" {
		redemption.RedemptionID = uuid.NewString()
	}
	return nil
}

// RedemptionMilestone records the first time a user redeemed anything. It
// outlives the ledger rows a revert deletes.
type RedemptionMilestone struct {
	UserID          string    `gorm:"primaryKey"`
	FirstRedeemedAt time.Time `gorm:"not null"`
}

func (RedemptionMilestone) TableName() string { return "redemption_milestones" }

// Models lists every table managed by the store, in migration order.
func Models() []interface{} {
	return []interface{}{&Card{}, &Benefit{}, &UserCard{}, &Redemption{}, &RedemptionMilestone{}}
}
