package memory

import (
	"context"
	"sync"
)

// Ledger is an in-process notification.Ledger.
type Ledger struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

func NewLedger() *Ledger {
	return &Ledger{keys: map[string]struct{}{}}
}

func (l *Ledger) Claim(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.keys[key]; ok {
		return false, nil
	}
	l.keys[key] = struct{}{}
	return true, nil
}

func (l *Ledger) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}
