package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"zonebot/internal/model"
)

// APIError is a provider response that carried an explicit failure, or a
// body that could not be trusted (a response without the success indicator
// counts as a failure).
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider rejected request (HTTP %d, code %d): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider request failed (HTTP %d)", e.StatusCode)
}

var (
	// ErrNotFound: the record does not exist on the provider.
	ErrNotFound = errors.New("record not found on provider")
	// ErrAlreadyExists: a record with the same fully-qualified name and
	// type already exists on the provider.
	ErrAlreadyExists = errors.New("record already exists on provider")
	// ErrUnavailable: the bounded retry budget was exhausted on
	// transient failures.
	ErrUnavailable = errors.New("provider unavailable")
)

// Transient reports whether an error is worth retrying: timeouts and
// server-side failures. Explicit provider rejections are not.
func Transient(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.StatusCode >= 500 || ae.StatusCode == http.StatusTooManyRequests
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success    bool            `json:"success"`
	Errors     []apiMessage    `json:"errors"`
	Result     json.RawMessage `json:"result"`
	ResultInfo *resultInfo     `json:"result_info"`
}

type resultInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

type zoneBody struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type recordBody struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Name    string `json:"name"`
	Content string `json:"content"`
	TTL     int    `json:"ttl"`
	Proxied bool   `json:"proxied"`
}

func (r recordBody) toModel(zoneID, zoneName string) model.Record {
	return model.Record{
		ID:       r.ID,
		ZoneID:   zoneID,
		ZoneName: zoneName,
		Name:     r.Name,
		Type:     r.Type,
		Content:  r.Content,
		TTL:      r.TTL,
		Proxied:  r.Proxied,
	}
}

// do performs a single request attempt against the provider and decodes
// the response envelope into result.
func (g *Gateway) do(ctx context.Context, method, path string, body, result any) (*resultInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "undecodable response body"}
	}
	if !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(env.Errors) > 0 {
			apiErr.Code = env.Errors[0].Code
			apiErr.Message = env.Errors[0].Message
		}
		return nil, apiErr
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return nil, fmt.Errorf("decoding result: %w", err)
		}
	}
	return env.ResultInfo, nil
}

// call wraps do with the retry policy and maps exhausted transient
// failures to ErrUnavailable.
func (g *Gateway) call(ctx context.Context, method, path string, body, result any) error {
	err := g.policy.Do(ctx, Transient, func(ctx context.Context) error {
		_, derr := g.do(ctx, method, path, body, result)
		return derr
	})
	if err != nil && Transient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
