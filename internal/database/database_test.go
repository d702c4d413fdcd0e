package database

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"chartscan/entity"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.values[i].(int64)
		case *int:
			*p = r.values[i].(int)
		case *string:
			*p = r.values[i].(string)
		case *time.Time:
			*p = r.values[i].(time.Time)
		case *sql.NullTime:
			*p = r.values[i].(sql.NullTime)
		}
	}
	return nil
}

func TestScanAccount(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	until := created.Add(30 * 24 * time.Hour)
	row := fakeRow{values: []any{
		int64(42), "trader", "Ann", "ABCDEF12", 2, "2026-03-01", 7,
		sql.NullTime{Time: until, Valid: true}, int64(7), int64(19), int64(4), created, created,
	}}

	acc, err := scanAccount(row)
	require.NoError(t, err)
	assert.Equal(t, int64(42), acc.UserID)
	assert.Equal(t, 2, acc.FreeScansUsedToday)
	assert.Equal(t, 7, acc.BonusCredits)
	require.NotNil(t, acc.PremiumUntil)
	assert.True(t, acc.PremiumUntil.Equal(until))
	assert.Equal(t, int64(4), acc.Version)
}

func TestScanAccountWithoutPremium(t *testing.T) {
	now := time.Now()
	row := fakeRow{values: []any{
		int64(1), "", "", "00000000", 0, "", 0,
		sql.NullTime{}, int64(0), int64(0), int64(0), now, now,
	}}
	acc, err := scanAccount(row)
	require.NoError(t, err)
	assert.Nil(t, acc.PremiumUntil)
}

func TestScanAccountError(t *testing.T) {
	_, err := scanAccount(fakeRow{err: sql.ErrNoRows})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestNullTime(t *testing.T) {
	assert.False(t, nullTime(nil).Valid)

	local := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	nt := nullTime(&local)
	assert.True(t, nt.Valid)
	assert.Equal(t, time.UTC, nt.Time.Location())
	assert.True(t, nt.Time.Equal(local))
}

func TestDefaultAccountDocument(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	doc := defaultAccount(5, now)

	m := doc.Map()
	assert.Equal(t, entity.ReferralCodeFor(5), m["referral_code"])
	assert.Equal(t, int64(0), m["version"])
	assert.NotContains(t, m, "user_id")

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	var acc entity.Account
	require.NoError(t, bson.Unmarshal(raw, &acc))
	assert.Equal(t, 0, acc.BonusCredits)
	assert.Nil(t, acc.PremiumUntil)
}
