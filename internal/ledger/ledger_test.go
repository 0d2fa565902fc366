package ledger

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = func() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
}

func fingerprintOf(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestMemory_PutGetRoundTrip(t *testing.T) {
	ldg := NewMemory("tester", testNow)
	fp := fingerprintOf("doc-1")

	receipt, err := ldg.Put(context.Background(), "prop_1", fp, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(genesisBlockHeight), receipt.BlockHeight)
	assert.NotEmpty(t, receipt.Handle)

	entry, err := ldg.Get(context.Background(), "prop_1")
	require.NoError(t, err)
	assert.Equal(t, fp, entry.Fingerprint)
	assert.Equal(t, 30, entry.RiskScore)
	assert.Equal(t, "tester", entry.VerifierIdentity)
	assert.Equal(t, receipt.BlockHeight, entry.BlockHeight)
}

func TestMemory_GetUnknownIsNotFound(t *testing.T) {
	ldg := NewMemory("tester", testNow)
	_, err := ldg.Get(context.Background(), "prop_missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_HeightsAreMonotonic(t *testing.T) {
	ldg := NewMemory("tester", testNow)

	r1, err := ldg.Put(context.Background(), "prop_a", fingerprintOf("a"), 0)
	require.NoError(t, err)
	r2, err := ldg.Put(context.Background(), "prop_b", fingerprintOf("b"), 0)
	require.NoError(t, err)
	r3, err := ldg.Put(context.Background(), "prop_a", fingerprintOf("a2"), 0)
	require.NoError(t, err)

	assert.Equal(t, r1.BlockHeight+1, r2.BlockHeight)
	assert.Equal(t, r2.BlockHeight+1, r3.BlockHeight)
}

func TestMemory_HistoryIsAppendOnly(t *testing.T) {
	ldg := NewMemory("tester", testNow)
	ctx := context.Background()

	fp1 := fingerprintOf("v1")
	fp2 := fingerprintOf("v2")

	_, err := ldg.Put(ctx, "prop_1", fp1, 10)
	require.NoError(t, err)

	history, err := ldg.History(ctx, "prop_1")
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = ldg.Put(ctx, "prop_1", fp2, 20)
	require.NoError(t, err)

	history, err = ldg.History(ctx, "prop_1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, fp1, history[0])

	// Equal consecutive puts still append: history records attempts.
	_, err = ldg.Put(ctx, "prop_1", fp2, 20)
	require.NoError(t, err)

	history, err = ldg.History(ctx, "prop_1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, fp1, history[0])
	assert.Equal(t, fp2, history[1])

	entry, err := ldg.Get(ctx, "prop_1")
	require.NoError(t, err)
	assert.Equal(t, fp2, entry.Fingerprint)
}

func TestMemory_Verify(t *testing.T) {
	ldg := NewMemory("tester", testNow)
	ctx := context.Background()
	fp := fingerprintOf("doc")

	_, err := ldg.Put(ctx, "prop_1", fp, 0)
	require.NoError(t, err)

	ok, err := ldg.Verify(ctx, "prop_1", fp)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ldg.Verify(ctx, "prop_1", fingerprintOf("other"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = ldg.Verify(ctx, "prop_missing", fp)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_RejectsEmptyInput(t *testing.T) {
	ldg := NewMemory("tester", testNow)

	_, err := ldg.Put(context.Background(), "", fingerprintOf("x"), 0)
	assert.ErrorIs(t, err, ErrRejected)

	_, err = ldg.Put(context.Background(), "prop_1", nil, 0)
	assert.ErrorIs(t, err, ErrRejected)
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ldg := NewMemory("tester", testNow)
	ctx := context.Background()

	_, err := ldg.Put(ctx, "prop_1", fingerprintOf("doc"), 0)
	require.NoError(t, err)

	entry, err := ldg.Get(ctx, "prop_1")
	require.NoError(t, err)
	entry.Fingerprint[0] ^= 0xFF

	fresh, err := ldg.Get(ctx, "prop_1")
	require.NoError(t, err)
	assert.Equal(t, fingerprintOf("doc"), fresh.Fingerprint)
}

func TestMemory_Status(t *testing.T) {
	ldg := NewMemory("tester", testNow)

	status, err := ldg.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Available)
	assert.Equal(t, "memory", status.Backend)

	_, err = ldg.Put(context.Background(), "prop_1", fingerprintOf("doc"), 0)
	require.NoError(t, err)

	status, err = ldg.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(genesisBlockHeight), status.BlockHeight)
}
