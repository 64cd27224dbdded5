// Package gateway holds the client contract the skill dispatches through and
// the bounded-timeout dispatcher.
package gateway

import "context"

// Client issues one request against a database gateway and returns the
// decoded JSON object.
type Client interface {
	Request(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error)
}

// ClientFunc adapts a plain function to Client.
type ClientFunc func(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error)

// Request calls f.
func (f ClientFunc) Request(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	return f(ctx, method, path, body)
}
