package eventbus

import (
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
	"github.com/randalmurphal/eventbus/pkg/eventbus/subscriber"
)

// subscription binds one handler descriptor to one subscriber instance.
type subscription struct {
	id         string
	subscriber any
	method     *subscriber.Method
	logger     *slog.Logger

	// active is cleared by Unregister; queued deliveries check it before invoking.
	active atomic.Bool
}

func newSubscription(sub any, m *subscriber.Method, logger *slog.Logger) *subscription {
	id := uuid.NewString()
	s := &subscription{
		id:         id,
		subscriber: sub,
		method:     m,
		logger:     observability.EnrichLogger(logger, id, m.IdentityKey()),
	}
	s.active.Store(true)
	return s
}

func (s *subscription) failure(event any, err error, stack string) *SubscriberError {
	return &SubscriberError{
		SubscriptionID: s.id,
		Handler:        s.method.IdentityKey(),
		Subscriber:     s.subscriber,
		Event:          event,
		Err:            err,
		Stack:          stack,
	}
}

// insertByPriority returns a new list with s after every subscription of
// equal or higher priority. The input list is not modified.
func insertByPriority(list []*subscription, s *subscription) []*subscription {
	p := s.method.Priority()
	i := sort.Search(len(list), func(i int) bool {
		return list[i].method.Priority() < p
	})

	out := make([]*subscription, 0, len(list)+1)
	out = append(out, list[:i]...)
	out = append(out, s)
	return append(out, list[i:]...)
}

// without returns a new list lacking s.
func without(list []*subscription, s *subscription) []*subscription {
	out := make([]*subscription, 0, len(list))
	for _, existing := range list {
		if existing != s {
			out = append(out, existing)
		}
	}
	return out
}
