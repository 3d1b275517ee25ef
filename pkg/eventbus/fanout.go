package eventbus

import (
	"context"
	"errors"

	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

// fanout delivers every event to all wrapped publishers.
type fanout struct {
	publishers []Publisher
}

// Fanout combines several publishers into one. Publish attempts every
// sink even when an earlier one fails and returns the joined errors;
// Close closes all sinks the same way. With zero publishers the result
// discards events, with one it is returned as-is.
func Fanout(publishers ...Publisher) Publisher {
	if len(publishers) == 1 {
		return publishers[0]
	}
	return &fanout{publishers: publishers}
}

func (f *fanout) Publish(ctx context.Context, event *types.StealthEvent) error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) Close() error {
	var errs []error
	for _, p := range f.publishers {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
