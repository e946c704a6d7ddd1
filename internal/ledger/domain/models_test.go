package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCheckAmount(t *testing.T) {
	one := decimal.NewFromInt(1)

	assert.NoError(t, TransactionTypeTopUp.CheckAmount(one))
	assert.NoError(t, TransactionTypeFreeCredit.CheckAmount(one))
	assert.NoError(t, TransactionTypeUsageCharge.CheckAmount(one.Neg()))
	assert.NoError(t, TransactionTypeRefund.CheckAmount(one.Neg()))

	assert.ErrorIs(t, TransactionTypeTopUp.CheckAmount(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, TransactionTypeRefund.CheckAmount(one), ErrInvalidAmount)
	assert.ErrorIs(t, TransactionType("x").CheckAmount(one), ErrInvalidType)
}

func TestCheckAmountRejectsSubScaleDigits(t *testing.T) {
	assert.NoError(t, TransactionTypeTopUp.CheckAmount(decimal.RequireFromString("10.123456")))
	assert.NoError(t, TransactionTypeTopUp.CheckAmount(decimal.RequireFromString("10.1234560000")))
	assert.ErrorIs(t, TransactionTypeTopUp.CheckAmount(decimal.RequireFromString("10.1234567")), ErrInvalidAmount)
	assert.ErrorIs(t, TransactionTypeRefund.CheckAmount(decimal.RequireFromString("-0.0000001")), ErrInvalidAmount)
}

func TestOnlyUsageChargeMayOverdraw(t *testing.T) {
	assert.True(t, TransactionTypeUsageCharge.MayOverdraw())
	assert.False(t, TransactionTypeRefund.MayOverdraw())
	assert.False(t, TransactionTypeTopUp.MayOverdraw())
}
