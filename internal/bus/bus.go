package bus

import (
	"context"
	"log"
	"sync"
)

// MessageBus connects platform adapters to the gateway. Adapters push
// InboundMessage; the gateway (and components) push OutboundMessage, which
// DispatchOutbound fans out to the subscribed adapters.
type MessageBus struct {
	Inbound  chan InboundMessage
	Outbound chan OutboundMessage

	mu          sync.RWMutex
	subscribers map[string]func(OutboundMessage)
}

func NewMessageBus(bufSize int) *MessageBus {
	return &MessageBus{
		Inbound:     make(chan InboundMessage, bufSize),
		Outbound:    make(chan OutboundMessage, bufSize),
		subscribers: make(map[string]func(OutboundMessage)),
	}
}

// SubscribeOutbound registers a send handler for a platform name.
func (b *MessageBus) SubscribeOutbound(platformName string, handler func(OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[platformName] = handler
}

// DispatchOutbound delivers outbound messages until ctx is cancelled.
// Messages with an empty Platform go to every subscriber.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case msg := <-b.Outbound:
			b.deliver(msg)
		case <-ctx.Done():
			return
		}
	}
}

func (b *MessageBus) deliver(msg OutboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if msg.Platform != "" {
		if handler, ok := b.subscribers[msg.Platform]; ok {
			handler(msg)
		} else {
			log.Printf("[bus] no subscriber for platform %q", msg.Platform)
		}
		return
	}
	for _, handler := range b.subscribers {
		handler(msg)
	}
}
