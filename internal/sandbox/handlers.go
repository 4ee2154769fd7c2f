package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vinayprograms/agentkit/logging"
)

const maxFetchBytes = 50 * 1024

// RegisterBuiltins installs the stock task handlers. The builtin names
// are statically valid, so a registration error here is a programming
// mistake and panics.
func RegisterBuiltins(r *Registry, logger *logging.Logger) {
	if logger == nil {
		logger = logging.New().WithComponent("heartbeat")
	}
	mustRegister(r, "log_activity", logActivityHandler(logger))
	mustRegister(r, "fetch_url", fetchURLHandler)
	mustRegister(r, "post_status", postStatusHandler)
	mustRegister(r, "check_endpoint", checkEndpointHandler)
}

func mustRegister(r *Registry, name string, h HandlerFunc) {
	if err := r.Register(name, h); err != nil {
		panic(err)
	}
}

func stringParam(params map[string]interface{}, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing required parameter %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("parameter %q must be a string", name)
	}
	return s, nil
}

func logActivityHandler(logger *logging.Logger) HandlerFunc {
	return func(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
		message, err := stringParam(params, "message")
		if err != nil {
			return nil, err
		}
		logger.Info("site activity", map[string]interface{}{
			"site":    sb.SiteID,
			"message": message,
		})
		return map[string]interface{}{"logged": message}, nil
	}
}

func fetchURLHandler(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
	rawURL, err := stringParam(params, "url")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, sb.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("read failed: %w", err)
	}
	return map[string]interface{}{
		"status": resp.StatusCode,
		"body":   string(body),
	}, nil
}

// postStatusHandler posts a JSON status payload, authenticating with
// the one key the owning site is entitled to.
func postStatusHandler(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
	endpoint, err := stringParam(params, "endpoint")
	if err != nil {
		return nil, err
	}
	status, err := stringParam(params, "status")
	if err != nil {
		return nil, err
	}

	keyName, err := stringParam(params, "api_key_name")
	if err != nil {
		return nil, err
	}
	key, err := sb.GetAPIKey(keyName)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(map[string]string{"status": status})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, sb.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxFetchBytes))

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("post failed with status %d", resp.StatusCode)
	}
	return map[string]interface{}{"status": resp.StatusCode}, nil
}

func checkEndpointHandler(ctx context.Context, sb *Context, params map[string]interface{}) (interface{}, error) {
	rawURL, err := stringParam(params, "url")
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, sb.Timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	return map[string]interface{}{
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
		"healthy":    resp.StatusCode < 400,
	}, nil
}
