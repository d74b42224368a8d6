// Package transport is the thin HTTP layer shared by the Redmine and GitLab
// clients. The two systems share no behavior beyond "add an auth header and
// parse JSON", so the auth header is the only injection point.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// AuthFunc sets authentication headers on an outgoing request.
type AuthFunc func(h http.Header)

// Sender is the request surface the API clients consume. It enables testing
// project-level logic without a live HTTP server.
type Sender interface {
	Do(ctx context.Context, method, url string, body any, headers http.Header) (json.RawMessage, error)
	Download(ctx context.Context, url string) (io.ReadCloser, string, error)
	Upload(ctx context.Context, url, field, filename string, r io.Reader, headers http.Header) (json.RawMessage, error)
}

// Client implements Sender on top of net/http.
type Client struct {
	http *http.Client
	auth AuthFunc
}

// NewClient builds a client with the given auth hook. insecure disables TLS
// certificate verification (self-hosted instances with private CAs).
func NewClient(auth AuthFunc, insecure bool) *Client {
	httpTransport := http.DefaultTransport
	if insecure {
		httpTransport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 - operator opt-in
		}
	}
	return &Client{
		http: &http.Client{
			Transport: httpTransport,
			Timeout:   60 * time.Second,
		},
		auth: auth,
	}
}

// Do performs one JSON request. A non-nil body is marshaled as JSON. A non-2xx
// status yields a *RequestError carrying the response body for diagnostics.
//
// DELETE responses with empty or unparsable bodies are returned as nil without
// error: some GitLab versions answer deletes with no content at all.
func (c *Client) Do(ctx context.Context, method, url string, body any, headers http.Header) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, url, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building %s %s: %w", method, url, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req, headers)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Method: method, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Method: method, URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if !json.Valid(respBody) {
		if method == http.MethodDelete {
			return nil, nil
		}
		return nil, &RequestError{
			Method: method, URL: url, StatusCode: resp.StatusCode,
			Body: string(respBody),
			Err:  fmt.Errorf("response is not valid JSON"),
		}
	}
	return json.RawMessage(respBody), nil
}

// Download streams a resource, returning the body and its content type.
// The caller owns the returned ReadCloser.
func (c *Client) Download(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building GET %s: %w", url, err)
	}
	c.applyHeaders(req, nil)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", &RequestError{Method: http.MethodGet, URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, "", &RequestError{Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, resp.Header.Get("Content-Type"), nil
}

// Upload posts a single file as multipart form data under the given field
// name and returns the parsed JSON response.
func (c *Client) Upload(ctx context.Context, url, field, filename string, r io.Reader, headers http.Header) (json.RawMessage, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		return nil, fmt.Errorf("building multipart body for %s: %w", filename, err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("reading upload content for %s: %w", filename, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing multipart body for %s: %w", filename, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("building POST %s: %w", url, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.applyHeaders(req, headers)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RequestError{Method: http.MethodPost, URL: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RequestError{Method: http.MethodPost, URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RequestError{Method: http.MethodPost, URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return json.RawMessage(respBody), nil
}

func (c *Client) applyHeaders(req *http.Request, extra http.Header) {
	if c.auth != nil {
		c.auth(req.Header)
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}
}
