package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/execution-hub/dealflow/internal/application/dispatcher"
	"github.com/execution-hub/dealflow/internal/domain/deal"
	dealmocks "github.com/execution-hub/dealflow/internal/domain/deal/mocks"
	"github.com/execution-hub/dealflow/internal/domain/notification"
	"github.com/execution-hub/dealflow/internal/infrastructure/memory"
	"github.com/execution-hub/dealflow/internal/metrics"
)

var now = time.Date(2026, 6, 2, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDealRepository(clock)
	platform := memory.NewPlatform()
	notify := dispatcher.New(platform, nil, memory.NewLedger(), nil, 0, zerolog.Nop())

	listing, err := platform.SendMessage(ctx, "listings", notification.Message{
		Title:   "Nike Dunk Low",
		Buttons: []notification.Button{dispatcher.ClaimButton("stale", true)},
	})
	require.NoError(t, err)

	seed := []*deal.Deal{
		{ID: "stale", SKU: "A", Size: "40", Status: deal.StatusPending, CreatedAt: now.Add(-30 * time.Hour),
			ListingChannelID: listing.ChannelID, ListingMessageID: listing.MessageID},
		{ID: "fresh", SKU: "B", Size: "41", Status: deal.StatusPending, CreatedAt: now.Add(-time.Hour)},
		{ID: "claimed", SKU: "C", Size: "42", Status: deal.StatusClaimProcessing, CreatedAt: now.Add(-30 * time.Hour)},
		{ID: "channel", SKU: "D", Size: "43", Status: deal.StatusPending, ClaimChannelID: "ch-1", CreatedAt: now.Add(-30 * time.Hour)},
	}
	for _, d := range seed {
		require.NoError(t, repo.Create(ctx, d))
	}

	s := New(repo, notify, Settings{Threshold: 24 * time.Hour, BatchSize: 100}, metrics.New(), zerolog.Nop())
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	want := map[string]deal.Status{
		"stale":   deal.StatusExpired,
		"fresh":   deal.StatusPending,
		"claimed": deal.StatusClaimProcessing,
		"channel": deal.StatusPending,
	}
	for id, status := range want {
		d, err := repo.Find(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, d.Status, id)
	}

	posted, ok := platform.Message(listing)
	require.True(t, ok)
	assert.Equal(t, notification.ExpiredTitlePrefix+"Nike Dunk Low", posted.Message.Title)
	assert.True(t, posted.Message.Buttons[0].Disabled)

	n, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeper_OutsourceAndMissingMessage(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewDealRepository(clock)
	notify := dispatcher.New(memory.NewPlatform(), nil, memory.NewLedger(), nil, 0, zerolog.Nop())
	require.NoError(t, repo.Create(ctx, &deal.Deal{ID: "out", SKU: "A", Size: "40", Status: deal.StatusOutsource, CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, repo.Create(ctx, &deal.Deal{ID: "gone", SKU: "B", Size: "40", Status: deal.StatusPending, CreatedAt: now.Add(-48 * time.Hour),
		ListingChannelID: "listings", ListingMessageID: "deleted-message"}))

	s := New(repo, notify, Settings{Threshold: 24 * time.Hour}, nil, zerolog.Nop())
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSweeper_BatchContinuesPastFailures(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	repo := dealmocks.NewMockRepository(ctrl)
	notify := dispatcher.New(memory.NewPlatform(), nil, memory.NewLedger(), nil, 0, zerolog.Nop())

	candidates := []*deal.Deal{
		{ID: "broken", Version: 3, Status: deal.StatusPending},
		{ID: "raced", Version: 5, Status: deal.StatusPending},
		{ID: "ok", Version: 1, Status: deal.StatusOutsource},
	}
	repo.EXPECT().Query(gomock.Any(), deal.ExpiryCandidates(24*time.Hour, 2)).Return(candidates, nil)
	repo.EXPECT().Update(gomock.Any(), "broken", gomock.Any()).Return(nil, errors.New("connection reset"))
	repo.EXPECT().Update(gomock.Any(), "raced", gomock.Any()).Return(nil, deal.ErrConflict)
	repo.EXPECT().Update(gomock.Any(), "ok", gomock.Any()).DoAndReturn(func(_ context.Context, id string, p *deal.Patch) (*deal.Deal, error) {
		assert.Equal(t, int64(1), p.ExpectedVersion())
		assert.Equal(t, deal.StatusExpired, p.Fields()[deal.FieldStatus])
		return &deal.Deal{ID: id, Version: 2, Status: deal.StatusExpired}, nil
	})

	s := New(repo, notify, Settings{Threshold: 24 * time.Hour, BatchSize: 2}, nil, zerolog.Nop())
	n, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSweeper_QueryFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := dealmocks.NewMockRepository(ctrl)
	repo.EXPECT().Query(gomock.Any(), gomock.Any()).Return(nil, errors.New("store unavailable"))

	s := New(repo, nil, Settings{}, nil, zerolog.Nop())
	_, err := s.RunOnce(context.Background())
	assert.Error(t, err)
}

func TestSweeper_StartStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	repo := memory.NewDealRepository(clock)
	s := New(repo, nil, Settings{InitialDelay: time.Millisecond, Interval: time.Millisecond}, nil, zerolog.Nop())

	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
