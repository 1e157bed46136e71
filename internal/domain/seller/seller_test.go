package seller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCode(t *testing.T) {
	for _, in := range []string{"1", "se 1", "SE-00001", "SE00001", " se-1 "} {
		got, err := NormalizeCode(in)
		require.NoError(t, err, in)
		assert.Equal(t, "SE-00001", got, in)
	}

	got, err := NormalizeCode("SE-123456")
	require.NoError(t, err)
	assert.Equal(t, "SE-123456", got)

	for _, in := range []string{"", "SE-", "0", "abc"} {
		_, err := NormalizeCode(in)
		assert.ErrorIs(t, err, ErrInvalidCode, in)
	}
}
