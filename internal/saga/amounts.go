package saga

import (
	"math"

	"studiobook/internal/models"
)

// Deposit pricing: customers pay half the subtotal up front, and the card
// processing fee on the full subtotal is loaded entirely onto the deposit.
const (
	cardFeeRate = 0.022
	depositRate = 0.5
)

// Amounts is the full deposit breakdown in minor currency units.
type Amounts struct {
	Subtotal    int64 `json:"subtotal"`
	CardFee     int64 `json:"card_fee"`
	BaseDeposit int64 `json:"base_deposit"`
	Deposit     int64 `json:"deposit_amount"`
	Total       int64 `json:"total_amount"`
	BalanceDue  int64 `json:"balance_due"`
}

// ComputeAmounts derives the deposit breakdown for a service selection. All
// arithmetic stays in integer minor units until display.
func ComputeAmounts(services []models.Service) Amounts {
	subtotal := models.Subtotal(services)
	fee := roundRate(subtotal, cardFeeRate)
	base := roundRate(subtotal, depositRate)

	return Amounts{
		Subtotal:    subtotal,
		CardFee:     fee,
		BaseDeposit: base,
		Deposit:     base + fee,
		Total:       subtotal + fee,
		BalanceDue:  subtotal - base,
	}
}

func roundRate(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate))
}
