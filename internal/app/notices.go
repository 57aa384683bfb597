package app

import (
	"context"
	"sync"

	"github.com/opsboard/opsboard/internal/guard"
)

// ExpiredMessage is the notice shown when the stored session ran out.
const ExpiredMessage = "Sesión expirada"

// noticeBox collects the notices raised while serving one request.
type noticeBox struct {
	mu    sync.Mutex
	items []guard.Notice
}

func (b *noticeBox) Notify(n guard.Notice) {
	b.mu.Lock()
	b.items = append(b.items, n)
	b.mu.Unlock()
}

func (b *noticeBox) list() []guard.Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]guard.Notice{}, b.items...)
}

type noticeContextKey struct{}

func contextWithNotices(ctx context.Context, b *noticeBox) context.Context {
	return context.WithValue(ctx, noticeContextKey{}, b)
}

func noticesFromContext(ctx context.Context) *noticeBox {
	b, _ := ctx.Value(noticeContextKey{}).(*noticeBox)
	return b
}
