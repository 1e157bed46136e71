package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBolt_ClaimOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := Open(path)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := l.Claim(ctx, "deal.approved:rec1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Claim(ctx, "deal.approved:rec1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := l.ClaimedAt("deal.approved:rec1")
	require.NoError(t, err)
	assert.True(t, found)

	require.NoError(t, l.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	ok, err = reopened.Claim(ctx, "deal.approved:rec1")
	require.NoError(t, err)
	assert.False(t, ok, "claims survive a restart")

	require.NoError(t, reopened.Release(ctx, "deal.approved:rec1"))
	ok, err = reopened.Claim(ctx, "deal.approved:rec1")
	require.NoError(t, err)
	assert.True(t, ok)
}
