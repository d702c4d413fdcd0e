package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/lib/validate"
)

func TestInvoicePayloadRoundTrip(t *testing.T) {
	for _, p := range []InvoicePayload{
		{Product: ProductPremium, UserID: 42},
		{Product: ProductScans, UserID: 7, Quantity: 5},
	} {
		got, err := ParseInvoicePayload(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
}

func TestParseInvoicePayloadRejects(t *testing.T) {
	for _, s := range []string{"", "premium", "premium_x", "scans_1", "scans_1_0", "scans_-3_2", "gift_1_2"} {
		_, err := ParseInvoicePayload(s)
		assert.Error(t, err, s)
	}
}

func TestPaymentEventValidation(t *testing.T) {
	ok := PaymentEvent{ID: "ch_1", Provider: ProviderStripe, UserID: 1, Product: ProductScans, Quantity: 5}
	require.NoError(t, validate.Struct(&ok))

	premium := PaymentEvent{ID: "ch_2", Provider: ProviderTelegramStars, UserID: 1, Product: ProductPremium, Days: 30}
	require.NoError(t, validate.Struct(&premium))

	missingQty := ok
	missingQty.Quantity = 0
	assert.Error(t, validate.Struct(&missingQty))

	missingDays := premium
	missingDays.Days = 0
	assert.Error(t, validate.Struct(&missingDays))

	unknown := ok
	unknown.Product = "gift"
	assert.Error(t, validate.Struct(&unknown))
}

func TestAccountHelpers(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	a := NewAccount(12345, now)

	assert.Equal(t, ReferralCodeFor(12345), a.ReferralCode)
	assert.Len(t, a.ReferralCode, ReferralCodeLength)
	assert.False(t, a.IsPremium(now))

	until := now.Add(time.Hour)
	a.PremiumUntil = &until
	assert.True(t, a.IsPremium(now))
	assert.False(t, a.IsPremium(until))

	a.FreeScansUsedToday = 2
	a.LastResetDay = "2024-05-01"
	assert.Equal(t, 1, a.FreeRemaining("2024-05-01", 3))
	assert.Equal(t, 3, a.FreeRemaining("2024-05-02", 3))

	c := a.Clone()
	c.ReferralCreditedFor = append(c.ReferralCreditedFor, 9)
	*c.PremiumUntil = now
	assert.Empty(t, a.ReferralCreditedFor)
	assert.Equal(t, until, *a.PremiumUntil)
}

func TestReferralCodeForDistinct(t *testing.T) {
	// these two ids shared a code under the old truncated-hash scheme
	assert.NotEqual(t, ReferralCodeFor(25302), ReferralCodeFor(82945))
	assert.Equal(t, ReferralCodeFor(25302), ReferralCodeFor(25302))

	seen := make(map[string]int64, 200000)
	for id := int64(1); id <= 200000; id++ {
		code := ReferralCodeFor(id)
		prev, dup := seen[code]
		require.False(t, dup, "ids %d and %d share code %s", prev, id, code)
		require.Len(t, code, ReferralCodeLength)
		seen[code] = id
	}
}
