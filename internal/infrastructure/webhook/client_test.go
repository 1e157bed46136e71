package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/execution-hub/dealflow/internal/domain/notification"
)

func TestClient_Post(t *testing.T) {
	key := []byte("0123456789abcdef")
	var gotBody []byte
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, key, time.Second)
	require.NoError(t, err)

	payload := &notification.WebhookPayload{Event: notification.WebhookDealApproved, RecordID: "rec1", SKU: "DD1391-100", Size: "42"}
	require.NoError(t, c.Post(context.Background(), payload))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "rec1", decoded["recordId"])
	assert.Equal(t, "deal.approved", gotHeaders.Get(headerEvent))
	assert.NotEmpty(t, gotHeaders.Get(headerDelivery))

	want, err := Sign(key, gotBody)
	require.NoError(t, err)
	assert.Equal(t, want, gotHeaders.Get(headerSignature))
}

func TestClient_Errors(t *testing.T) {
	status := http.StatusBadRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("nope"))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, nil, time.Second)
	require.NoError(t, err)
	payload := &notification.WebhookPayload{Event: notification.WebhookLabelUploaded}

	err = c.Post(context.Background(), payload)
	assert.ErrorIs(t, err, ErrRejected)

	status = http.StatusBadGateway
	err = c.Post(context.Background(), payload)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)

	unset, err := NewClient("", nil, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, unset.Post(context.Background(), payload), ErrNotConfigured)

	_, err = NewClient(srv.URL, make([]byte, 65), time.Second)
	assert.Error(t, err)
}
