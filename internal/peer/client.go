// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package peer

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/retry"

	"github.com/clustervision/luna2-daemon-sub002/domain/ha"
	"github.com/clustervision/luna2-daemon-sub002/domain/journal"
	"github.com/clustervision/luna2-daemon-sub002/domain/records"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetryDelay = 300 * time.Millisecond
	requestAttempts   = 2
)

// Logger represents the logging methods called.
type Logger interface {
	Debugf(message string, args ...any)
	Warningf(message string, args ...any)
}

// TokenSource issues access tokens for a target controller.
type TokenSource interface {
	Token(target string) (string, error)
}

// ClientConfig holds the dependencies of a peer client.
type ClientConfig struct {
	// Hostname is the local controller's hostname.
	Hostname string

	// Tokens issues the per target access tokens.
	Tokens TokenSource

	// Clock drives the retry delay.
	Clock clock.Clock

	// Logger receives request diagnostics.
	Logger Logger

	// Secure selects https. InsecureSkipVerify disables certificate
	// verification, as controllers usually carry self signed
	// certificates.
	Secure             bool
	InsecureSkipVerify bool

	// Timeout bounds every single request attempt.
	Timeout time.Duration

	// RetryDelay is the pause before the retry of a failed request.
	RetryDelay time.Duration

	// BaseURL overrides the address derivation of a target.
	BaseURL func(target ha.Controller) string
}

// Validate returns an error if the config is not usable.
func (c ClientConfig) Validate() error {
	if c.Hostname == "" {
		return errors.NotValidf("empty Hostname")
	}
	if c.Tokens == nil {
		return errors.NotValidf("nil Tokens")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.Logger == nil {
		return errors.NotValidf("nil Logger")
	}
	return nil
}

// Client talks to the peer API of other controllers.
type Client struct {
	cfg  ClientConfig
	http *http.Client
}

// NewClient returns a client for the peer API.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}, nil
}

// Ping checks the liveness of the target and returns its role.
func (c *Client) Ping(ctx context.Context, target ha.Controller) (PingResponse, error) {
	var resp PingResponse
	err := c.call(ctx, target, http.MethodGet, pathPing, nil, decodeJSON(&resp))
	return resp, errors.Trace(err)
}

// Checksums returns the fingerprints of the target's tracked tables.
func (c *Client) Checksums(ctx context.Context, target ha.Controller) (map[string]string, error) {
	var resp ChecksumsResponse
	if err := c.call(ctx, target, http.MethodGet, pathChecksums, nil, decodeJSON(&resp)); err != nil {
		return nil, errors.Trace(err)
	}
	return resp.Checksums, nil
}

// Table downloads the full content of a tracked table from the target.
func (c *Client) Table(ctx context.Context, target ha.Controller, name string) (records.Table, error) {
	var table records.Table
	path := strings.Replace(pathTable, "{name}", name, 1)
	err := c.call(ctx, target, http.MethodGet, path, nil, func(r io.Reader) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return errors.Trace(err)
		}
		table, err = records.Unmarshal(data)
		return errors.Trace(err)
	})
	return table, errors.Trace(err)
}

// PushJournal delivers journal entries originating here to the target.
func (c *Client) PushJournal(ctx context.Context, target ha.Controller, entries []journal.Entry) error {
	body := JournalBatch{Origin: c.cfg.Hostname, Entries: entries}
	return errors.Trace(c.call(ctx, target, http.MethodPost, pathJournal, body, nil))
}

// PullJournal fetches the entries the target holds for this controller.
func (c *Client) PullJournal(ctx context.Context, target ha.Controller) ([]journal.Entry, error) {
	var batch JournalBatch
	path := strings.Replace(pathPull, "{host}", c.cfg.Hostname, 1)
	if err := c.call(ctx, target, http.MethodGet, path, nil, decodeJSON(&batch)); err != nil {
		return nil, errors.Trace(err)
	}
	return batch.Entries, nil
}

// AckJournal tells the target that pulled entries have been received.
func (c *Client) AckJournal(ctx context.Context, target ha.Controller, uuids []string) error {
	path := strings.Replace(pathAck, "{host}", c.cfg.Hostname, 1)
	return errors.Trace(c.call(ctx, target, http.MethodPost, path, AckRequest{UUIDs: uuids}, nil))
}

// SetRole asks the target to change its master role.
func (c *Client) SetRole(ctx context.Context, target ha.Controller, change RoleChange) error {
	return errors.Trace(c.call(ctx, target, http.MethodPost, pathRole, change, nil))
}

// statusError is a non successful response of a peer.
type statusError struct {
	code    int
	message string
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("peer returned %d %s", e.code, http.StatusText(e.code))
	}
	return fmt.Sprintf("peer returned %d: %s", e.code, e.message)
}

// retryable reports whether a failed request is worth a second attempt.
func retryable(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		// Transport failures, refused connections or timeouts.
		return true
	}
	switch se.code {
	case http.StatusNotFound,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) call(
	ctx context.Context,
	target ha.Controller,
	method, path string,
	body any,
	decode func(io.Reader) error,
) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return errors.Trace(err)
		}
	}
	url := c.baseURL(target) + path
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return c.do(ctx, target, method, url, payload, decode)
		},
		IsFatalError: func(err error) bool {
			return !retryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			c.cfg.Logger.Debugf("%s %s attempt %d: %v", method, url, attempt, err)
		},
		Attempts: requestAttempts,
		Delay:    c.cfg.RetryDelay,
		Clock:    c.cfg.Clock,
		Stop:     ctx.Done(),
	})
	if err != nil {
		if retry.IsAttemptsExceeded(err) || retry.IsRetryStopped(err) {
			err = retry.LastError(err)
		}
		return errors.Annotatef(err, "%s %s", method, url)
	}
	return nil
}

func (c *Client) do(
	ctx context.Context,
	target ha.Controller,
	method, url string,
	payload []byte,
	decode func(io.Reader) error,
) error {
	token, err := c.cfg.Tokens.Token(target.Hostname)
	if err != nil {
		return errors.Trace(err)
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return errors.Trace(err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Trace(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var failure ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&failure)
		return &statusError{code: resp.StatusCode, message: failure.Error}
	}
	if decode == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return errors.Trace(decode(resp.Body))
}

func (c *Client) baseURL(target ha.Controller) string {
	if c.cfg.BaseURL != nil {
		return c.cfg.BaseURL(target)
	}
	scheme := "http"
	if c.cfg.Secure {
		scheme = "https"
	}
	host := target.IPv4
	if host == "" {
		host = target.Hostname
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(target.ServerPort))
}

func decodeJSON(out any) func(io.Reader) error {
	return func(r io.Reader) error {
		return errors.Trace(json.NewDecoder(r).Decode(out))
	}
}
