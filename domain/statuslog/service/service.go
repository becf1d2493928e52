// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package service

import (
	"context"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"

	"github.com/clustervision/luna2-daemon-sub002/core/status"
)

// State describes retrieval and persistence methods for the status log.
type State interface {
	// Append adds the input message to its request's feed.
	Append(ctx context.Context, msg status.Message) error

	// Poll returns and consumes the unread messages of a request.
	Poll(ctx context.Context, requestID string) ([]status.Message, error)

	// DeleteOlderThan removes messages created before the input time.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Service provides the API for the per-request message feeds.
type Service struct {
	st    State
	clock clock.Clock
}

// NewService returns a new service reference wrapping the input state.
func NewService(st State, clock clock.Clock) *Service {
	return &Service{
		st:    st,
		clock: clock,
	}
}

// Append adds a free text message to the request's feed.
func (s *Service) Append(ctx context.Context, requestID, origin, text string) error {
	if requestID == "" {
		return errors.NotValidf("empty request id")
	}
	return errors.Trace(s.st.Append(ctx, status.Message{
		RequestID: requestID,
		Origin:    origin,
		Text:      text,
		Created:   s.clock.Now().UTC(),
	}))
}

// AppendResult adds the outcome of an operation to the request's feed.
// The message text is the rendered result.
func (s *Service) AppendResult(ctx context.Context, requestID, origin string, result status.Result) error {
	if requestID == "" {
		return errors.NotValidf("empty request id")
	}
	return errors.Trace(s.st.Append(ctx, status.Message{
		RequestID: requestID,
		Origin:    origin,
		Text:      result.String(),
		Result:    &result,
		Created:   s.clock.Now().UTC(),
	}))
}

// Finish terminates the request's feed with the EOF sentinel.
func (s *Service) Finish(ctx context.Context, requestID, origin string) error {
	return errors.Trace(s.Append(ctx, requestID, origin, status.EOF))
}

// Poll returns the unread messages of the request in append order and
// marks them read. A feed that ends with EOF is deleted once polled.
func (s *Service) Poll(ctx context.Context, requestID string) ([]status.Message, error) {
	messages, err := s.st.Poll(ctx, requestID)
	return messages, errors.Trace(err)
}

// ReapOlderThan deletes every message older than the input age,
// regardless of whether it has been read.
func (s *Service) ReapOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	removed, err := s.st.DeleteOlderThan(ctx, s.clock.Now().UTC().Add(-age))
	return removed, errors.Trace(err)
}
