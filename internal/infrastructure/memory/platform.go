package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/execution-hub/dealflow/internal/domain/notification"
)

// Channel is a channel created on the loopback platform.
type Channel struct {
	ID      string
	Spec    notification.ChannelSpec
	Deleted bool
}

// Posted is a message stored by the loopback platform.
type Posted struct {
	Ref     notification.MessageRef
	Message notification.Message
	Edits   int
}

// Platform is an in-process notification.Platform used for local runs and
// tests. It keeps everything it is asked to send so callers can inspect it.
type Platform struct {
	mu       sync.RWMutex
	channels map[string]*Channel
	order    []string
	messages map[string]*Posted
	direct   map[string][]notification.Message
	failures map[string]error
}

func NewPlatform() *Platform {
	return &Platform{
		channels: make(map[string]*Channel),
		messages: make(map[string]*Posted),
		direct:   make(map[string][]notification.Message),
		failures: make(map[string]error),
	}
}

// Operation names accepted by FailOn.
const (
	OpSend          = "send"
	OpEdit          = "edit"
	OpCreateChannel = "create_channel"
	OpDeleteChannel = "delete_channel"
	OpDirect        = "direct"
)

// FailOn makes every later call of op return err. A nil err clears it.
func (p *Platform) FailOn(op string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failures, op)
		return
	}
	p.failures[op] = err
}

func (p *Platform) SendMessage(_ context.Context, channelID string, msg notification.Message) (notification.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[OpSend]; err != nil {
		return notification.MessageRef{}, err
	}
	if c, ok := p.channels[channelID]; ok && c.Deleted {
		return notification.MessageRef{}, notification.ErrChannelGone
	}
	ref := notification.MessageRef{ChannelID: channelID, MessageID: uuid.NewString()}
	p.messages[ref.MessageID] = &Posted{Ref: ref, Message: msg}
	return ref, nil
}

func (p *Platform) EditMessage(_ context.Context, ref notification.MessageRef, edit notification.Edit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[OpEdit]; err != nil {
		return err
	}
	posted, ok := p.messages[ref.MessageID]
	if !ok || posted.Ref.ChannelID != ref.ChannelID {
		return fmt.Errorf("message %s not found", ref.MessageID)
	}
	m := &posted.Message
	if edit.Content != nil {
		m.Content = *edit.Content
	}
	if edit.Description != nil {
		m.Description = *edit.Description
	}
	if edit.Color != nil {
		m.Color = *edit.Color
	}
	if edit.TitlePrefix != "" && !strings.HasPrefix(m.Title, edit.TitlePrefix) {
		m.Title = edit.TitlePrefix + m.Title
	}
	if edit.Fields != nil {
		m.Fields = append([]notification.Field(nil), (*edit.Fields)...)
	}
	if edit.Buttons != nil {
		m.Buttons = append([]notification.Button(nil), (*edit.Buttons)...)
	}
	posted.Edits++
	return nil
}

func (p *Platform) CreatePrivateChannel(_ context.Context, spec notification.ChannelSpec) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[OpCreateChannel]; err != nil {
		return "", err
	}
	id := uuid.NewString()
	p.channels[id] = &Channel{ID: id, Spec: spec}
	p.order = append(p.order, id)
	return id, nil
}

func (p *Platform) DeleteChannel(_ context.Context, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[OpDeleteChannel]; err != nil {
		return err
	}
	c, ok := p.channels[channelID]
	if !ok || c.Deleted {
		return notification.ErrChannelGone
	}
	c.Deleted = true
	return nil
}

func (p *Platform) SendDirectMessage(_ context.Context, userID string, msg notification.Message) (notification.MessageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failures[OpDirect]; err != nil {
		return notification.MessageRef{}, err
	}
	ref := notification.MessageRef{ChannelID: "dm-" + userID, MessageID: uuid.NewString()}
	p.messages[ref.MessageID] = &Posted{Ref: ref, Message: msg}
	p.direct[userID] = append(p.direct[userID], msg)
	return ref, nil
}

func (p *Platform) CountCategoryChannels(_ context.Context, categoryID string) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, c := range p.channels {
		if !c.Deleted && c.Spec.CategoryID == categoryID {
			n++
		}
	}
	return n, nil
}

// Channels returns created channels in creation order.
func (p *Platform) Channels() []Channel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Channel, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.channels[id])
	}
	return out
}

// Message returns the current state of a posted message.
func (p *Platform) Message(ref notification.MessageRef) (Posted, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	posted, ok := p.messages[ref.MessageID]
	if !ok {
		return Posted{}, false
	}
	return *posted, true
}

// ChannelMessages returns every message posted to channelID.
func (p *Platform) ChannelMessages(channelID string) []notification.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []notification.Message
	for _, posted := range p.messages {
		if posted.Ref.ChannelID == channelID {
			out = append(out, posted.Message)
		}
	}
	return out
}

// DirectMessages returns the messages sent to userID in order.
func (p *Platform) DirectMessages(userID string) []notification.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]notification.Message(nil), p.direct[userID]...)
}
