package catalog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const anniversaryLayout = "2006-01-02"

type fileCatalog struct {
	Cards      []fileCard      `yaml:"cards"`
	Ownerships []fileOwnership `yaml:"ownerships"`
}

type fileCard struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	AnnualFee string        `yaml:"annual_fee"`
	Benefits  []fileBenefit `yaml:"benefits"`
}

type fileBenefit struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Value        string   `yaml:"value"`
	PeriodMonths int      `yaml:"period_months"`
	ResetType    string   `yaml:"reset_type"`
	Categories   []string `yaml:"categories"`
}

type fileOwnership struct {
	UserID          string `yaml:"user_id"`
	CardID          string `yaml:"card_id"`
	AnniversaryDate string `yaml:"anniversary_date"`
}

// LoadFile reads a YAML catalog file.
func LoadFile(path string) (Catalog, error) {
	file, err := os.Open(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("open catalog %s: %w", path, err)
	}
	defer file.Close()
	return Decode(file)
}

// Decode parses a YAML catalog. Benefit ids must be unique across the
// catalog and ownerships must reference known cards.
func Decode(reader io.Reader) (Catalog, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	var raw fileCatalog
	if err := decoder.Decode(&raw); err != nil {
		if err == io.EOF {
			return Catalog{}, nil
		}
		return Catalog{}, fmt.Errorf("%w: %w", ErrInvalidCatalogFile, err)
	}

	result := Catalog{Entries: make([]Entry, 0, len(raw.Cards))}
	knownCards := make(map[perks.CardID]struct{}, len(raw.Cards))
	knownBenefits := make(map[perks.BenefitID]struct{})
	for _, rawCard := range raw.Cards {
		entry, err := parseCard(rawCard)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: card %q: %w", ErrInvalidCatalogFile, rawCard.ID, err)
		}
		if _, duplicate := knownCards[entry.Card.ID]; duplicate {
			return Catalog{}, fmt.Errorf("%w: duplicate card %q", ErrInvalidCatalogFile, rawCard.ID)
		}
		knownCards[entry.Card.ID] = struct{}{}
		for _, benefit := range entry.Benefits {
			if _, duplicate := knownBenefits[benefit.ID]; duplicate {
				return Catalog{}, fmt.Errorf("%w: duplicate benefit %q", ErrInvalidCatalogFile, benefit.ID)
			}
			knownBenefits[benefit.ID] = struct{}{}
		}
		result.Entries = append(result.Entries, entry)
	}

	for _, rawOwnership := range raw.Ownerships {
		ownership, err := parseOwnership(rawOwnership)
		if err != nil {
			return Catalog{}, fmt.Errorf("%w: ownership %q/%q: %w", ErrInvalidCatalogFile, rawOwnership.UserID, rawOwnership.CardID, err)
		}
		if _, known := knownCards[ownership.CardID]; !known {
			return Catalog{}, fmt.Errorf("%w: ownership references unknown card %q", ErrInvalidCatalogFile, rawOwnership.CardID)
		}
		result.Ownerships = append(result.Ownerships, ownership)
	}
	return result, nil
}

func parseCard(raw fileCard) (Entry, error) {
	cardID, err := perks.NewCardID(raw.ID)
	if err != nil {
		return Entry{}, err
	}
	annualFee := decimal.Zero
	if raw.AnnualFee != "" {
		annualFee, err = perks.NewMoney(raw.AnnualFee)
		if err != nil {
			return Entry{}, err
		}
	}
	entry := Entry{
		Card:     perks.Card{ID: cardID, Name: raw.Name, AnnualFee: annualFee},
		Benefits: make([]perks.BenefitDefinition, 0, len(raw.Benefits)),
	}
	for _, rawBenefit := range raw.Benefits {
		value, err := perks.NewMoney(rawBenefit.Value)
		if err != nil {
			return Entry{}, fmt.Errorf("benefit %q: %w", rawBenefit.ID, err)
		}
		benefit, err := benefitFromFields(rawBenefit.ID, rawBenefit.Name, value, rawBenefit.PeriodMonths, rawBenefit.ResetType, rawBenefit.Categories)
		if err != nil {
			return Entry{}, fmt.Errorf("benefit %q: %w", rawBenefit.ID, err)
		}
		entry.Benefits = append(entry.Benefits, benefit)
	}
	return entry, nil
}

func parseOwnership(raw fileOwnership) (Ownership, error) {
	userID, err := perks.NewUserID(raw.UserID)
	if err != nil {
		return Ownership{}, err
	}
	cardID, err := perks.NewCardID(raw.CardID)
	if err != nil {
		return Ownership{}, err
	}
	ownership := Ownership{UserID: userID, CardID: cardID}
	if raw.AnniversaryDate != "" {
		anniversary, err := time.Parse(anniversaryLayout, raw.AnniversaryDate)
		if err != nil {
			return Ownership{}, err
		}
		ownership.AnniversaryDate = &anniversary
	}
	return ownership, nil
}
