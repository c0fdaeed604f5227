// Package noop provides a publisher that discards events.
package noop

import "context"

// Publisher drops every event. Used when live notifications are disabled.
type Publisher struct{}

// New constructs a Publisher.
func New() *Publisher { return &Publisher{} }

// Publish discards the payload.
func (p *Publisher) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
