package eventbus

// NoSubscriberEvent is posted when an event reaches no handler.
type NoSubscriberEvent struct {
	Bus           *Bus
	OriginalEvent any
}

// SubscriberExceptionEvent is posted when a handler fails.
// Handlers for it that fail themselves are only logged.
type SubscriberExceptionEvent struct {
	Bus               *Bus
	Err               *SubscriberError
	CausingEvent      any
	CausingSubscriber any
}

func isBusEvent(event any) bool {
	switch event.(type) {
	case NoSubscriberEvent, *NoSubscriberEvent, SubscriberExceptionEvent, *SubscriberExceptionEvent:
		return true
	}
	return false
}
