package task

import (
	"encoding/json"
	"fmt"

	"github.com/microsoft/durablefunctions-go/backend"
)

type callHTTPOption func(*backend.DurableHTTPRequest) error

// WithHTTPContent sets the request body. Strings are sent as is; any other value is sent as JSON.
func WithHTTPContent(content any) callHTTPOption {
	return func(req *backend.DurableHTTPRequest) error {
		if s, ok := content.(string); ok {
			req.Content = s
			return nil
		}
		data, err := json.Marshal(content)
		if err != nil {
			return fmt.Errorf("failed to marshal HTTP content: %w", err)
		}
		req.Content = string(data)
		return nil
	}
}

// WithHTTPHeader adds a request header.
func WithHTTPHeader(name string, value string) callHTTPOption {
	return func(req *backend.DurableHTTPRequest) error {
		if req.Headers == nil {
			req.Headers = make(map[string]string)
		}
		req.Headers[name] = value
		return nil
	}
}

// WithManagedIdentityToken makes the host attach a token for resource, acquired with the
// function app's managed identity.
func WithManagedIdentityToken(resource string) callHTTPOption {
	return func(req *backend.DurableHTTPRequest) error {
		req.TokenSource = &backend.TokenSource{Resource: resource}
		return nil
	}
}

// DurableHTTPResponse is the result of a durable HTTP call.
type DurableHTTPResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Content    string            `json:"content,omitempty"`
}

// CallHTTP schedules an HTTP request that the host performs. The task's result is a
// [DurableHTTPResponse].
func (ctx *OrchestrationContext) CallHTTP(method string, uri string, opts ...callHTTPOption) Task {
	req := &backend.DurableHTTPRequest{Method: method, URI: uri}
	action := &backend.CallHTTPAction{HTTPRequest: req}
	for _, configure := range opts {
		if err := configure(req); err != nil {
			return ctx.newFailedTask(action, err)
		}
	}
	t := ctx.newActivityAttempt(backend.HTTPActivityName, -1)
	t.action = action
	return t
}
