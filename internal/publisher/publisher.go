// Package publisher announces completed runs to a message topic.
package publisher

import "context"

// Publisher sends a JSON-encodable payload to a topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Nop drops every message.
type Nop struct{}

// Publish for Nop returns an empty ID.
func (Nop) Publish(context.Context, string, any) (string, error) {
	return "", nil
}
