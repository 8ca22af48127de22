// Package archive publishes durably appended messages to Kafka for the
// downstream persistence/analytics pipeline. Publishing is off the hot
// path: a failed produce is logged, never surfaced to the sender.
package archive

import (
	"context"

	"github.com/bera-tech-ai/gramX/internal/domain"
)

// Producer publishes appended messages.
type Producer interface {
	Produce(ctx context.Context, msg *domain.Message) error
	Close() error
}

// NewNoop returns a Producer that discards everything. Used when Kafka
// is not configured.
func NewNoop() Producer { return noopProducer{} }

type noopProducer struct{}

func (noopProducer) Produce(context.Context, *domain.Message) error { return nil }
func (noopProducer) Close() error                                   { return nil }
