// Package storage defines where copies of the CSV artifact can be uploaded.
package storage

import (
	"context"
	"io"
)

// Provider uploads an object and returns its URI.
type Provider interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
