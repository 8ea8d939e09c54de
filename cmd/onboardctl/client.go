package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/onboarding-enforcer/internal/monitoring"
	"github.com/angelmondragon/onboarding-enforcer/internal/sweep"
	"github.com/angelmondragon/onboarding-enforcer/pkg/types"
)

const adminPrefix = "/api/admin/v1/background-jobs"

// apiError is a non-2xx envelope returned by the admin surface.
type apiError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	if e.Retryable {
		msg += "; retry later"
	}
	return msg
}

type client struct {
	base string
	http *http.Client
}

func newClient(addr string, timeout time.Duration) (*client, error) {
	addr = strings.TrimRight(strings.TrimSpace(addr), "/")
	if addr == "" {
		return nil, fmt.Errorf("admin address required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	if _, err := url.Parse(addr); err != nil {
		return nil, fmt.Errorf("invalid admin address: %w", err)
	}
	return &client{base: addr, http: &http.Client{Timeout: timeout}}, nil
}

// triggerResult is the 200 (finished) or 202 (still running) trigger body.
type triggerResult struct {
	Finished bool
	Result   sweep.Result
	Status   sweep.Status
}

func (c *client) status(ctx context.Context) (sweep.Status, error) {
	var out sweep.Status
	_, err := c.do(ctx, http.MethodGet, adminPrefix+"/status", nil, &out)
	return out, err
}

func (c *client) trigger(ctx context.Context, timeout time.Duration) (triggerResult, error) {
	q := url.Values{}
	if timeout > 0 {
		q.Set("timeout", timeout.String())
	}
	var raw json.RawMessage
	code, err := c.do(ctx, http.MethodPost, adminPrefix+"/trigger", q, &raw)
	if err != nil {
		return triggerResult{}, err
	}
	if code == http.StatusAccepted {
		var pending struct {
			Status sweep.Status `json:"status"`
		}
		if err := json.Unmarshal(raw, &pending); err != nil {
			return triggerResult{}, fmt.Errorf("decode trigger response: %w", err)
		}
		return triggerResult{Status: pending.Status}, nil
	}
	var res sweep.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return triggerResult{}, fmt.Errorf("decode trigger response: %w", err)
	}
	return triggerResult{Finished: true, Result: res}, nil
}

func (c *client) overdue(ctx context.Context, tenant string) (monitoring.Overdue, error) {
	var out monitoring.Overdue
	_, err := c.do(ctx, http.MethodGet, adminPrefix+"/deadlines/overdue", tenantQuery(tenant), &out)
	return out, err
}

func (c *client) approaching(ctx context.Context, tenant string) (monitoring.Approaching, error) {
	var out monitoring.Approaching
	_, err := c.do(ctx, http.MethodGet, adminPrefix+"/deadlines/approaching", tenantQuery(tenant), &out)
	return out, err
}

func (c *client) reassignments(ctx context.Context, window time.Duration, limit int, cursor string) (monitoring.ReassignmentPage, error) {
	q := url.Values{}
	if window > 0 {
		q.Set("window", window.String())
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var out monitoring.ReassignmentPage
	_, err := c.do(ctx, http.MethodGet, adminPrefix+"/reassignments", q, &out)
	return out, err
}

func tenantQuery(tenant string) url.Values {
	q := url.Values{}
	if tenant != "" {
		q.Set("tenantId", tenant)
	}
	return q
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, dest any) (int, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var env types.ErrorEnvelope
		if err := json.Unmarshal(body, &env); err != nil || env.Error.Code == "" {
			return resp.StatusCode, &apiError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: strings.TrimSpace(string(body))}
		}
		return resp.StatusCode, &apiError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message, Retryable: env.Error.Retryable}
	}

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("decode response: %w", err)
	}
	if dest != nil {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response data: %w", err)
		}
	}
	return resp.StatusCode, nil
}
