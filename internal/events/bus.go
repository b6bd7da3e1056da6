// Package events carries lifecycle notifications for correlations out of the
// engine. Publishing is best-effort: a failed publish is logged by the caller
// and never rolls back the write it announces.
package events

import (
	"context"

	"github.com/datalinker/correlation-backend/internal/domain"
)

type Bus interface {
	Publish(ctx context.Context, ev domain.Event) error
	Subscribe(ctx context.Context, onEvent func(ev domain.Event)) error
	Close() error
}
