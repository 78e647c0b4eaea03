package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/campaign-dispatcher/internal/repository"
	"github.com/unclebandit/campaign-dispatcher/internal/store"
)

// TickLock serializes ticks across every process sharing the store. The key
// expires after TTL and is never renewed. Release only deletes the key while
// it still holds this holder's token.
type TickLock struct {
	Store  store.Store
	TTL    time.Duration
	Logger *slog.Logger
}

// Acquire returns a release func when the lock was free. ok is false when
// another tick holds it.
func (l *TickLock) Acquire(ctx context.Context) (release func(), ok bool, err error) {
	token := uuid.NewString()
	ok, err = l.Store.SetIfAbsent(ctx, repository.KeyTickLock, []byte(token), l.TTL)
	if err != nil {
		return nil, false, fmt.Errorf("acquire tick lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		released, err := l.Store.DeleteIfEqual(context.WithoutCancel(ctx), repository.KeyTickLock, []byte(token))
		switch {
		case err != nil:
			l.Logger.Warn("failed to release tick lock", "error", err)
		case !released:
			l.Logger.Warn("tick lock expired before release", "ttl", l.TTL)
		}
	}
	return release, true, nil
}
