package ledger

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/store"
	"chartscan/internal/store/memory"
)

const (
	referrer int64 = 100
	referee  int64 = 200
)

func codeOf(t *testing.T, l *Ledger, userID int64) string {
	t.Helper()
	s, err := l.AccountSummary(ctx, userID, t0)
	require.NoError(t, err)
	return s.ReferralCode
}

func TestApplyReferralCreditsBothSides(t *testing.T) {
	l, st := newLedger(t)
	code := codeOf(t, l, referrer)

	outcome, err := l.ApplyReferral(ctx, referee, code, t0)
	require.NoError(t, err)
	assert.Equal(t, ReferralApplied, outcome)

	newAcc := readAccount(t, st, referee)
	assert.Equal(t, referrer, newAcc.ReferredBy)
	assert.Equal(t, 3, newAcc.BonusCredits)

	refAcc := readAccount(t, st, referrer)
	assert.Equal(t, 5, refAcc.BonusCredits)
	assert.Equal(t, []int64{referee}, refAcc.ReferralCreditedFor)

	assert.Len(t, st.Entries(referee), 1)
	assert.Len(t, st.Entries(referrer), 1)
}

func TestApplyReferralIsIdempotent(t *testing.T) {
	l, st := newLedger(t)
	code := codeOf(t, l, referrer)

	_, err := l.ApplyReferral(ctx, referee, code, t0)
	require.NoError(t, err)
	outcome, err := l.ApplyReferral(ctx, referee, code, t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ReferralAlreadyReferred, outcome)

	assert.Equal(t, 3, readAccount(t, st, referee).BonusCredits)
	assert.Equal(t, 5, readAccount(t, st, referrer).BonusCredits)
}

func TestReferredByIsWriteOnce(t *testing.T) {
	l, st := newLedger(t)
	_, err := l.ApplyReferral(ctx, referee, codeOf(t, l, referrer), t0)
	require.NoError(t, err)

	other := int64(300)
	outcome, err := l.ApplyReferral(ctx, referee, codeOf(t, l, other), t0)
	require.NoError(t, err)
	assert.Equal(t, ReferralAlreadyReferred, outcome)

	assert.Equal(t, referrer, readAccount(t, st, referee).ReferredBy)
	assert.Zero(t, readAccount(t, st, other).BonusCredits)
}

func TestSelfReferralMutatesNothing(t *testing.T) {
	l, st := newLedger(t)
	code := codeOf(t, l, referee)
	before := readAccount(t, st, referee)

	outcome, err := l.ApplyReferral(ctx, referee, code, t0)
	require.NoError(t, err)
	assert.Equal(t, ReferralSelfReferral, outcome)
	assert.True(t, outcome.Rejected())

	assert.Equal(t, before, readAccount(t, st, referee))
}

// clashingCodes resolves every code to one owner, as a lookup index holding
// the wrong user for a code would.
type clashingCodes struct {
	*memory.Memory
	owner int64
}

func (c *clashingCodes) FindByReferralCode(context.Context, string) (int64, error) {
	return c.owner, nil
}

func TestOwnCodeIsSelfReferralWhateverTheIndexSays(t *testing.T) {
	st := &clashingCodes{Memory: memory.New(), owner: 82945}
	l, err := New(st, DefaultConfig(), discard())
	require.NoError(t, err)
	before := readAccount(t, st, 25302)

	outcome, err := l.ApplyReferral(ctx, 25302, entity.ReferralCodeFor(25302), t0)
	require.NoError(t, err)
	assert.Equal(t, ReferralSelfReferral, outcome)
	assert.Equal(t, before, readAccount(t, st, 25302))
	assert.Zero(t, readAccount(t, st, 82945).BonusCredits)
}

func TestInvalidCode(t *testing.T) {
	l, st := newLedger(t)
	for _, code := range []string{"", "   ", "ZZZZZZZZ"} {
		outcome, err := l.ApplyReferral(ctx, referee, code, t0)
		require.NoError(t, err)
		assert.Equal(t, ReferralInvalidCode, outcome, code)
	}
	assert.False(t, readAccount(t, st, referee).HasReferrer())
}

func TestCodeIsCaseInsensitive(t *testing.T) {
	l, _ := newLedger(t)
	code := codeOf(t, l, referrer)

	outcome, err := l.ApplyReferral(ctx, referee, " "+strings.ToLower(code)+" ", t0)
	require.NoError(t, err)
	assert.Equal(t, ReferralApplied, outcome)
}

// flakyReferrer fails the first transaction on one user.
type flakyReferrer struct {
	*memory.Memory
	target int64
	failed bool
}

func (f *flakyReferrer) Transact(ctx context.Context, userID int64, now time.Time, fn store.Mutation) (*entity.Account, error) {
	if userID == f.target && !f.failed {
		f.failed = true
		return nil, store.Unavailable("transact", errDown)
	}
	return f.Memory.Transact(ctx, userID, now, fn)
}

func TestRetryCompletesReferrerSide(t *testing.T) {
	fs := &flakyReferrer{Memory: memory.New(), target: referrer}
	l, err := New(fs, DefaultConfig(), discard())
	require.NoError(t, err)
	code := codeOf(t, l, referrer)

	_, err = l.ApplyReferral(ctx, referee, code, t0)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, 3, readAccount(t, fs.Memory, referee).BonusCredits)
	assert.Zero(t, readAccount(t, fs.Memory, referrer).BonusCredits)

	outcome, err := l.ApplyReferral(ctx, referee, code, t0)
	require.NoError(t, err)
	assert.Equal(t, ReferralAlreadyReferred, outcome)
	assert.Equal(t, 3, readAccount(t, fs.Memory, referee).BonusCredits)
	assert.Equal(t, 5, readAccount(t, fs.Memory, referrer).BonusCredits)

	_, err = l.ApplyReferral(ctx, referee, code, t0)
	require.NoError(t, err)
	assert.Equal(t, 5, readAccount(t, fs.Memory, referrer).BonusCredits)
}

func TestReferrerCreditedOncePerReferee(t *testing.T) {
	l, st := newLedger(t)
	code := codeOf(t, l, referrer)
	for _, uid := range []int64{201, 202, 203} {
		outcome, err := l.ApplyReferral(ctx, uid, code, t0)
		require.NoError(t, err)
		assert.Equal(t, ReferralApplied, outcome)
	}
	acc := readAccount(t, st, referrer)
	assert.Equal(t, 15, acc.BonusCredits)
	assert.Len(t, acc.ReferralCreditedFor, 3)
}
