package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/microsoft/durablefunctions-go/backend"
	"github.com/microsoft/durablefunctions-go/internal/helpers"
	"github.com/microsoft/durablefunctions-go/task"
)

var ErrTokenSourceNotSupported = errors.New("managed identity tokens are not available to the local host")

// httpJob performs a durable HTTP request. Any response, whatever its status code, completes
// the task; only transport errors fail it.
func (h *Host) httpJob(taskID int32, req *backend.DurableHTTPRequest) job {
	return func(ctx context.Context) response {
		resp, err := h.doHTTP(ctx, req)
		if err != nil {
			h.logger.Warnf("HTTP %s %s (task %d) failed: %v", req.Method, req.URI, taskID, err)
			return response{event: helpers.NewTaskFailedEvent(taskID, err.Error(), "")}
		}
		data, err := json.Marshal(resp)
		if err != nil {
			return response{event: helpers.NewTaskFailedEvent(taskID, err.Error(), "")}
		}
		return response{event: helpers.NewTaskCompletedEvent(taskID, data)}
	}
}

func (h *Host) doHTTP(ctx context.Context, req *backend.DurableHTTPRequest) (*task.DurableHTTPResponse, error) {
	if req.TokenSource != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenSourceNotSupported, req.TokenSource.Resource)
	}
	var body io.Reader
	if req.Content != "" {
		body = strings.NewReader(req.Content)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URI, body)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP request: %w", err)
	}
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	httpResp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	content, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTTP response: %w", err)
	}

	resp := &task.DurableHTTPResponse{StatusCode: httpResp.StatusCode, Content: string(content)}
	if len(httpResp.Header) > 0 {
		resp.Headers = make(map[string]string, len(httpResp.Header))
		for name := range httpResp.Header {
			resp.Headers[name] = httpResp.Header.Get(name)
		}
	}
	return resp, nil
}
