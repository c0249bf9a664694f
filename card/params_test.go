package card_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/warp/card-engine/card"
	"github.com/warp/card-engine/engine"
)

func TestAPRResolutionMostSpecificFirst(t *testing.T) {
	tpl := card.DefaultTemplateParams()
	tpl.AnnualPercentageRate = dec("0.249")

	inst := baseInstance()
	inst.TransactionAPR = map[string]decimal.Decimal{
		"cash_advance":          dec("0.36"),
		"balance_transfer:ref1": dec("0.01"),
	}

	// Per-reference override.
	assert.True(t, tpl.APRFor(inst, engine.TypeBalanceTransfer, "ref1").Equal(dec("0.01")))
	// Per-type override.
	assert.True(t, tpl.APRFor(inst, engine.TypeCashAdvance, "").Equal(dec("0.36")))
	// Template default.
	assert.True(t, tpl.APRFor(inst, engine.TypePurchase, "").Equal(dec("0.249")))
	// An unconfigured reference falls through to the template default.
	assert.True(t, tpl.APRFor(inst, engine.TypeBalanceTransfer, "ref2").Equal(dec("0.249")))
}

func TestAPRBaseRateIsAdditive(t *testing.T) {
	tpl := card.DefaultTemplateParams()

	inst := baseInstance()
	inst.TransactionAPR = map[string]decimal.Decimal{"cash_advance": dec("0.30")}
	inst.TransactionBaseRates = map[string]decimal.Decimal{"cash_advance": dec("0.05")}

	assert.True(t, tpl.APRFor(inst, engine.TypeCashAdvance, "").Equal(dec("0.35")))
}

func TestClassifyCode(t *testing.T) {
	tpl := card.DefaultTemplateParams()

	txType, ok := tpl.ClassifyCode("")
	assert.True(t, ok)
	assert.Equal(t, engine.TypePurchase, txType)

	txType, ok = tpl.ClassifyCode("cash_advance")
	assert.True(t, ok)
	assert.Equal(t, engine.TypeCashAdvance, txType)

	_, ok = tpl.ClassifyCode("carrier_pigeon")
	assert.False(t, ok)
}

func TestFeeSpecEnabled(t *testing.T) {
	assert.False(t, card.FeeSpec{}.Enabled())
	assert.True(t, card.FeeSpec{FlatFee: dec("10")}.Enabled())
	assert.True(t, card.FeeSpec{PercentageFee: dec("0.02")}.Enabled())
}

func TestLimitSpecUnrestricted(t *testing.T) {
	assert.True(t, card.LimitSpec{}.Unrestricted())

	flat := dec("500")
	assert.False(t, card.LimitSpec{Flat: &flat}.Unrestricted())

	days := 14
	assert.False(t, card.LimitSpec{AllowedDaysAfterOpening: &days}.Unrestricted())
}

func TestSupportsDenomination(t *testing.T) {
	inst := baseInstance()
	inst.AdditionalDenominations = []string{"USD", "EUR"}

	assert.True(t, inst.SupportsDenomination("GBP"))
	assert.True(t, inst.SupportsDenomination("EUR"))
	assert.False(t, inst.SupportsDenomination("JPY"))
}
