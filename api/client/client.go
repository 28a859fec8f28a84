// Package client is an HTTP client for the ballot-ledger API. Besides the
// typed calls it implements preflight.Source, so that vote attempts can be
// checked off-chain against a remote ledger.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"github.com/vocdoni/ballot-ledger/api"
	"github.com/vocdoni/ballot-ledger/crypto/signatures/ethereum"
	"github.com/vocdoni/ballot-ledger/log"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	// DefaultRetries this enables Request() to handle the situation where the server connection fails
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client
	DefaultTimeout = 10 * time.Second

	retryDelay = 500 * time.Millisecond
	maxBodyLog = 512
)

// HTTPclient is the ballot-ledger API HTTP client.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
	signer  *ethereum.Signer
	clock   func() time.Time
}

// New returns a client for the API at host, after checking that it answers
// a ping.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	tr := &http.Transport{
		IdleConnTimeout:    DefaultTimeout,
		DisableCompression: false,
		WriteBufferSize:    1 * 1024 * 1024, // 1 MiB
		ReadBufferSize:     1 * 1024 * 1024, // 1 MiB
	}
	c := &HTTPclient{
		c:       &http.Client{Transport: tr, Timeout: DefaultTimeout},
		host:    hostURL,
		retries: DefaultRetries,
		clock:   time.Now,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if err := c.Ping(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetries configures the number of retries for the HTTP client.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = max(n, 1)
}

// SetTimeout configures the timeout for the HTTP client.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
	if tr, ok := c.c.Transport.(*http.Transport); ok {
		tr.ResponseHeaderTimeout = d
	}
}

// SetSigner configures the key that signs privileged requests.
func (c *HTTPclient) SetSigner(s *ethereum.Signer) {
	c.signer = s
}

// SetClock replaces the clock used to timestamp signed requests.
func (c *HTTPclient) SetClock(clock func() time.Time) {
	c.clock = clock
}

// Ping checks that the API answers.
func (c *HTTPclient) Ping(ctx context.Context) error {
	data, status, err := c.RequestContext(ctx, HTTPGET, nil, nil, api.PingEndpoint)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return decodeError(status, data)
	}
	return nil
}

// Request performs a `method` type raw request to the endpoint specified in urlPath parameter.
// Method is either GET or POST. If POST, a JSON struct should be attached.  Returns the response,
// the status code and an error.
//
// Supports query parameters via `params` slice. If the slice is not empty, it should contain pairs of strings;
// the first element of each pair is the key, and the second element is the value.
func (c *HTTPclient) Request(method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	return c.RequestContext(context.Background(), method, jsonBody, params, urlPath...)
}

// RequestContext is Request bound to ctx. Retries stop when ctx is done.
func (c *HTTPclient) RequestContext(ctx context.Context, method string, jsonBody any, params []string, urlPath ...string) ([]byte, int, error) {
	body, err := marshalBody(jsonBody)
	if err != nil {
		return nil, 0, err
	}
	return c.do(ctx, method, body, "", params, urlPath...)
}

// signedRequest sends jsonBody signed with the configured signer.
func (c *HTTPclient) signedRequest(ctx context.Context, jsonBody any, urlPath ...string) ([]byte, int, error) {
	if c.signer == nil {
		return nil, 0, fmt.Errorf("no signer configured")
	}
	body, err := marshalBody(jsonBody)
	if err != nil {
		return nil, 0, err
	}
	sig, err := c.signer.Sign(body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to sign request: %w", err)
	}
	return c.do(ctx, HTTPPOST, body, sig.Hex(), nil, urlPath...)
}

func marshalBody(jsonBody any) ([]byte, error) {
	if jsonBody == nil {
		return nil, nil
	}
	body, err := json.Marshal(jsonBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return body, nil
}

func (c *HTTPclient) do(ctx context.Context, method string, body []byte, signature string,
	params []string, urlPath ...string,
) ([]byte, int, error) {
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	// Expecting even-length slice: [key1, val1, key2, val2, ...]
	if len(params) > 0 {
		values := url.Values{}
		for i := 0; i < len(params)-1; i += 2 {
			values.Set(params[i], params[i+1])
		}
		u.RawQuery = values.Encode()
	}

	headers := http.Header{}
	if body != nil {
		headers.Set("Content-Type", "application/json")
		headers.Set("Accept", "application/json")
	}
	if signature != "" {
		headers.Set(api.SignatureHeader, signature)
	}

	log.Debugw("http client request",
		"type", method,
		"url", u.String(),
		"body", func() string {
			if len(body) > maxBodyLog {
				return string(body[:maxBodyLog]) + "..."
			}
			return string(body)
		}(),
	)

	var (
		resp *http.Response
		err  error
	)
	for i := 1; i <= c.retries; i++ {
		// Create a fresh request each attempt
		var req *http.Request
		req, err = http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(body))
		if err != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header = headers.Clone()

		resp, err = c.c.Do(req)
		if err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "retries", c.retries)
		if i == c.retries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request ultimately failed after retries: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}

// call performs a request and decodes a 200 response into out, when out is
// not nil. Any other status is returned as an *APIError.
func call(data []byte, status int, err error, out any) error {
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return decodeError(status, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// result decodes a 200 response into a new T.
func result[T any](data []byte, status int, err error) (*T, error) {
	out := new(T)
	if err := call(data, status, err, out); err != nil {
		return nil, err
	}
	return out, nil
}
