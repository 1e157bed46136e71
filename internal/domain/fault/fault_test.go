package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMatching(t *testing.T) {
	err := fmt.Errorf("claim: %w", InvalidState("This deal is already being processed."))

	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Equal(t, KindInvalidState, KindOf(err))
	assert.Equal(t, "This deal is already being processed.", UserMessage(err))
}

func TestExternalIOHidesDetails(t *testing.T) {
	err := ExternalIO("update deal", errors.New("connection reset by peer"))

	assert.ErrorIs(t, err, ErrExternalIO)
	assert.NotContains(t, UserMessage(err), "connection reset")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUnclassifiedErrors(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, KindExternalIO, KindOf(err))
	assert.Equal(t, genericFailure, UserMessage(err))
}
