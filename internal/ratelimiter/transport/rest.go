package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var _ Transport = &RESTTransport{}

// RESTTransport talks to a Redis-compatible REST endpoint: commands are POSTed
// as a JSON array with bearer authorization and answered with {"result": ...}.
type RESTTransport struct {
	url    string
	token  string
	client *http.Client
}

// NewRESTTransport constructs a transport for the endpoint url. A timeout of
// zero leaves the request bounded by the caller's context only.
func NewRESTTransport(url, token string, timeout time.Duration) *RESTTransport {
	return &RESTTransport{
		url:    strings.TrimRight(url, "/"),
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type commandResponse struct {
	Result interface{} `json:"result"`
	Error  string      `json:"error"`
}

// Do POSTs the command and returns its result.
func (t *RESTTransport) Do(ctx context.Context, args ...interface{}) (interface{}, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrCommandFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.token)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrCommandFailed, err)
	}

	var res commandResponse
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	decodeErr := decoder.Decode(&res)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if decodeErr == nil && res.Error != "" {
			return nil, fmt.Errorf("%w: http %d: %s", ErrCommandFailed, resp.StatusCode, res.Error)
		}
		return nil, fmt.Errorf("%w: http %d", ErrCommandFailed, resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrCommandFailed, decodeErr)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%w: %s", ErrCommandFailed, res.Error)
	}
	return res.Result, nil
}

// Close releases idle connections.
func (t *RESTTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
