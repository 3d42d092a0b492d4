// Package acmedns is a minimal client for the acme-dns HTTP API: account
// registration and TXT record updates. Both calls are synchronous and
// single-attempt; the invoking certificate client drives any repetition.
package acmedns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/httputil"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/telemetry"
)

// Client talks to one acme-dns instance
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the acme-dns instance at baseURL
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    httputil.DefaultClient(),
	}
}

// RegistrationError is a non-201 response from /register. The raw response
// body is kept so the operator can diagnose without log correlation.
type RegistrationError struct {
	StatusCode int
	Body       string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register a new acme-dns account: HTTP status %d, response body: %s",
		e.StatusCode, e.Body)
}

// UpdateError is a non-200 response from /update. It carries the full
// outgoing request and the response so a failure is reproducible from the
// error message alone.
type UpdateError struct {
	RequestHeaders map[string]string
	RequestBody    map[string]string
	StatusCode     int
	ResponseBody   string
}

func (e *UpdateError) Error() string {
	// Maps marshal with sorted keys, keeping the message deterministic
	headers, _ := json.MarshalIndent(e.RequestHeaders, "", "  ")
	body, _ := json.MarshalIndent(e.RequestBody, "", "  ")
	return fmt.Sprintf("failed to update TXT record in acme-dns\n"+
		"------- Request headers:\n%s\n"+
		"------- Request body:\n%s\n"+
		"------- Response HTTP status: %d\n"+
		"------- Response body: %s",
		headers, body, e.StatusCode, e.ResponseBody)
}

// RegisterAccount registers a new delegated account. When allowFrom is
// non-empty the listed networks are the only ones acme-dns will accept
// updates from; an empty list sends no request body at all.
func (c *Client) RegisterAccount(ctx context.Context, allowFrom []string) (*Account, error) {
	url := c.baseURL + "/register"

	ctx, span := telemetry.TraceHTTP(ctx, http.MethodPost, url)
	defer span.End()

	var reqBody io.Reader
	if len(allowFrom) > 0 {
		payload, err := json.Marshal(map[string][]string{"allowfrom": allowFrom})
		if err != nil {
			return nil, fmt.Errorf("failed to encode registration request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build registration request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("acme-dns registration request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read registration response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		err := &RegistrationError{StatusCode: resp.StatusCode, Body: string(body)}
		telemetry.RecordError(ctx, err)
		return nil, err
	}

	var account Account
	if err := json.Unmarshal(body, &account); err != nil {
		return nil, fmt.Errorf("failed to parse registration response: %w", err)
	}

	return &account, nil
}

// UpdateTXTRecord pushes txt as the TXT value for the account's subdomain
func (c *Client) UpdateTXTRecord(ctx context.Context, account *Account, txt string) error {
	url := c.baseURL + "/update"

	ctx, span := telemetry.TraceHTTP(ctx, http.MethodPost, url)
	defer span.End()

	update := map[string]string{
		"subdomain": account.Subdomain,
		"txt":       txt,
	}
	headers := map[string]string{
		"X-Api-User":   account.Username,
		"X-Api-Key":    account.Password,
		"Content-Type": "application/json",
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to encode update request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build update request: %w", err)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("acme-dns update request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read update response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		err := &UpdateError{
			RequestHeaders: headers,
			RequestBody:    update,
			StatusCode:     resp.StatusCode,
			ResponseBody:   string(body),
		}
		telemetry.RecordError(ctx, err)
		return err
	}

	return nil
}

// Healthy probes the acme-dns /health endpoint
func (c *Client) Healthy(ctx context.Context) error {
	url := c.baseURL + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("acme-dns health request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("acme-dns health endpoint returned HTTP status %d", resp.StatusCode)
	}

	return nil
}
