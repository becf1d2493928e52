// Copyright 2016 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package status

import (
	"fmt"
	"time"
)

// Status is the lifecycle status of a queued task.
type Status string

// String returns a string representation of the Status.
func (s Status) String() string {
	return string(s)
}

const (
	// Queued is set when a task has been accepted into a lane and is
	// waiting for a drainer.
	Queued Status = "queued"

	// InProgress is set by a drainer immediately before the task's
	// operation is executed.
	InProgress Status = "in progress"
)

// EOF is the sentinel message text that terminates a request's message
// feed. Its receipt by a poller clears the request's history.
const EOF = "EOF"

// Result is the outcome of a single operation reported to the status log.
// It replaces colon delimited "actor:command:result:message" strings with
// an explicit structure.
type Result struct {
	// Actor is the entity that carried out the command, usually a node,
	// an image or a controller hostname.
	Actor string `json:"actor"`

	// Command is the operation that was performed.
	Command string `json:"command"`

	// Success reports whether the command succeeded.
	Success bool `json:"success"`

	// Detail holds the human readable message.
	Detail string `json:"detail,omitempty"`
}

// String renders the result as text suitable for a status message.
func (r Result) String() string {
	outcome := "failed"
	if r.Success {
		outcome = "ok"
	}
	if r.Detail == "" {
		return fmt.Sprintf("%s %s: %s", r.Actor, r.Command, outcome)
	}
	return fmt.Sprintf("%s %s: %s: %s", r.Actor, r.Command, outcome, r.Detail)
}

// Message is a single entry in a request's message feed.
type Message struct {
	// RequestID identifies the request the message belongs to.
	RequestID string

	// Origin tags the component that wrote the message.
	Origin string

	// Text is the human readable text of the message.
	Text string

	// Result is the tagged outcome, if the message carries one.
	Result *Result

	// Created is when the message was appended.
	Created time.Time
}

// IsEOF reports whether the message is the feed terminator.
func (m Message) IsEOF() bool {
	return m.Text == EOF
}
