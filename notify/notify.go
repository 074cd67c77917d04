// Package notify delivers plain text messages to people.
package notify

import (
	"context"
)

type Notifier interface {
	Send(ctx context.Context, to string, text string) error
}

// Noop is used when notifications are disabled in config.
type Noop struct{}

func (Noop) Send(context.Context, string, string) error { return nil }
