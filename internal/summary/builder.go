// Package summary derives per-user conversation digests. Results are
// always computed live from the message store; the only optimization is
// collapsing concurrent recomputes for the same user into one query.
package summary

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/bera-tech-ai/gramX/internal/domain"
)

// Source provides the underlying summary query.
type Source interface {
	Summaries(ctx context.Context, userID string) ([]domain.ConversationSummary, error)
}

// Builder computes conversation summaries on demand.
type Builder struct {
	src Source
	sf  singleflight.Group
}

func NewBuilder(src Source) *Builder {
	return &Builder{src: src}
}

// Summaries returns the user's conversation list, most recent first.
// Concurrent calls for the same user share a single store round-trip;
// there is no caching across calls, so a summary requested after a
// mutation always reflects that mutation.
func (b *Builder) Summaries(ctx context.Context, userID string) ([]domain.ConversationSummary, error) {
	result, err, _ := b.sf.Do(userID, func() (interface{}, error) {
		return b.src.Summaries(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.ConversationSummary), nil
}
