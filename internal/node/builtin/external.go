package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/diazhh/petroedge-sub001/internal/message"
	"github.com/diazhh/petroedge-sub001/internal/node"
)

const restResponseLimit = 1 << 20 // 1 MiB response body cap

// restAPICall posts the message to an external HTTP endpoint. 2xx responses
// route success with the decoded body in metadata; 4xx/5xx route failure;
// transport errors and timeouts are faults so the error router and retries
// apply.
type restAPICall struct {
	services Services
	url      string
	method   string
	headers  map[string]string
	timeout  time.Duration
	sendBody bool
}

func newRestAPICall(services Services) node.Factory {
	return func(config map[string]any) (node.Handler, error) {
		url := cfgString(config, "url", "")
		if url == "" {
			return nil, fmt.Errorf("url is required")
		}

		headers := map[string]string{}
		for k, v := range cfgMap(config, "headers") {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}

		method := cfgString(config, "method", http.MethodPost)
		return &restAPICall{
			services: services,
			url:      url,
			method:   method,
			headers:  headers,
			timeout:  time.Duration(cfgInt(config, "timeoutMs", 10_000)) * time.Millisecond,
			sendBody: method != http.MethodGet && method != http.MethodHead,
		}, nil
	}
}

func (h *restAPICall) Execute(ctx context.Context, msg *message.Message) (*node.Result, error) {
	var body io.Reader
	if h.sendBody {
		encoded, err := json.Marshal(map[string]any{
			"payload":  msg.Payload,
			"metadata": msg.Meta,
		})
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, h.method, h.url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if h.sendBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.services.httpClient(h.timeout).Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", h.url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, restResponseLimit))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	msg.SetValue("httpStatus", resp.StatusCode)
	var decoded any
	if json.Unmarshal(raw, &decoded) == nil {
		msg.SetValue("httpResponse", decoded)
	} else if len(raw) > 0 {
		msg.SetValue("httpResponse", string(raw))
	}

	if resp.StatusCode >= 400 {
		return node.Failure(msg), nil
	}
	return node.Success(msg), nil
}
