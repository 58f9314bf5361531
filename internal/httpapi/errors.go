package httpapi

import (
	"errors"
	"net/http"

	"github.com/MarkoPoloResearchLab/perkledger/internal/savings"
	"github.com/MarkoPoloResearchLab/perkledger/pkg/perks"
	"github.com/gin-gonic/gin"
)

const (
	errorInvalidUserID         = "invalid_user_id"
	errorInvalidCardID         = "invalid_card_id"
	errorInvalidBenefitID      = "invalid_benefit_id"
	errorInvalidStatus         = "invalid_status"
	errorInvalidRemainingValue = "invalid_remaining_value"
	errorInvalidMoney          = "invalid_money"
	errorInvalidMonthRange     = "invalid_month_range"
	errorUnknownBenefit        = "unknown_benefit"
	errorUnknownCard           = "unknown_card"
	errorCardMismatch          = "card_mismatch"
	errorUnrecognizedPeriod    = "unrecognized_period"
	errorMissingPeriod         = "missing_period"
	errorCatalogUnavailable    = "catalog_unavailable"
	errorLedgerUnavailable     = "ledger_unavailable"
	errorLedgerWrite           = "ledger_write_failed"
	errorInternal              = "internal"
)

func mapToHTTPError(source error) (int, gin.H) {
	if errors.Is(source, perks.ErrInvalidUserID) {
		return http.StatusBadRequest, errorResponse(errorInvalidUserID, source.Error())
	}
	if errors.Is(source, perks.ErrInvalidCardID) {
		return http.StatusBadRequest, errorResponse(errorInvalidCardID, source.Error())
	}
	if errors.Is(source, perks.ErrInvalidBenefitID) {
		return http.StatusBadRequest, errorResponse(errorInvalidBenefitID, source.Error())
	}
	if errors.Is(source, perks.ErrInvalidStatus) {
		return http.StatusBadRequest, errorResponse(errorInvalidStatus, source.Error())
	}
	if errors.Is(source, perks.ErrInvalidRemainingValue) {
		return http.StatusBadRequest, errorResponse(errorInvalidRemainingValue, source.Error())
	}
	if errors.Is(source, perks.ErrInvalidMoney) {
		return http.StatusBadRequest, errorResponse(errorInvalidMoney, source.Error())
	}
	if errors.Is(source, savings.ErrInvalidMonthRange) {
		return http.StatusBadRequest, errorResponse(errorInvalidMonthRange, source.Error())
	}
	if errors.Is(source, perks.ErrUnknownBenefit) {
		return http.StatusNotFound, errorResponse(errorUnknownBenefit, source.Error())
	}
	if errors.Is(source, perks.ErrUnknownCard) {
		return http.StatusNotFound, errorResponse(errorUnknownCard, source.Error())
	}
	if errors.Is(source, perks.ErrCardMismatch) {
		return http.StatusConflict, errorResponse(errorCardMismatch, source.Error())
	}
	if errors.Is(source, perks.ErrUnrecognizedPeriod) {
		return http.StatusUnprocessableEntity, errorResponse(errorUnrecognizedPeriod, source.Error())
	}
	if errors.Is(source, perks.ErrMissingPeriod) {
		return http.StatusUnprocessableEntity, errorResponse(errorMissingPeriod, source.Error())
	}
	if errors.Is(source, perks.ErrCatalogFetch) {
		return http.StatusBadGateway, errorResponse(errorCatalogUnavailable, source.Error())
	}
	if errors.Is(source, perks.ErrLedgerFetch) {
		return http.StatusBadGateway, errorResponse(errorLedgerUnavailable, source.Error())
	}
	if errors.Is(source, perks.ErrLedgerWrite) {
		return http.StatusBadGateway, errorResponse(errorLedgerWrite, source.Error())
	}
	return http.StatusInternalServerError, errorResponse(errorInternal, source.Error())
}
