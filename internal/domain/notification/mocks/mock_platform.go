package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/execution-hub/dealflow/internal/domain/notification"
)

// MockPlatform is a mock implementation of notification.Platform
type MockPlatform struct {
	mock.Mock
}

func (m *MockPlatform) SendMessage(ctx context.Context, channelID string, msg notification.Message) (notification.MessageRef, error) {
	args := m.Called(ctx, channelID, msg)
	return args.Get(0).(notification.MessageRef), args.Error(1)
}

func (m *MockPlatform) EditMessage(ctx context.Context, ref notification.MessageRef, edit notification.Edit) error {
	args := m.Called(ctx, ref, edit)
	return args.Error(0)
}

func (m *MockPlatform) CreatePrivateChannel(ctx context.Context, spec notification.ChannelSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockPlatform) DeleteChannel(ctx context.Context, channelID string) error {
	args := m.Called(ctx, channelID)
	return args.Error(0)
}

func (m *MockPlatform) SendDirectMessage(ctx context.Context, userID string, msg notification.Message) (notification.MessageRef, error) {
	args := m.Called(ctx, userID, msg)
	return args.Get(0).(notification.MessageRef), args.Error(1)
}

func (m *MockPlatform) CountCategoryChannels(ctx context.Context, categoryID string) (int, error) {
	args := m.Called(ctx, categoryID)
	return args.Int(0), args.Error(1)
}
