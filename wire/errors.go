// Copyright (C) 2017-2020  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

package wire

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrorCode is a small integer-coded enum for the handful of
// protocol-error categories a job can raise.
type ErrorCode uint32

const (
	// NoThreadsAvailable is reported when the worker pool could not
	// schedule this connection for execution.
	NoThreadsAvailable ErrorCode = iota
	ProtocolError
	AuthenticationError
	InternalError
)

// AuthFatality is raised by Job.Perform when authentication permanently
// fails for this session. IsLoggable controls whether the failure is
// reported to the user-facing log at all (some auth failures are
// deliberately silent to avoid helping an attacker enumerate accounts).
type AuthFatality struct {
	Message    string
	IsLoggable bool
}

func (e *AuthFatality) Error() string { return e.Message }

// NewAuthFatality constructs a loggable authentication fatality.
func NewAuthFatality(message string) *AuthFatality {
	return &AuthFatality{Message: message, IsLoggable: true}
}

// NewSilentAuthFatality constructs an authentication fatality that must
// never reach the user log (e.g. to avoid confirming account existence).
func NewSilentAuthFatality(message string) *AuthFatality {
	return &AuthFatality{Message: message, IsLoggable: false}
}

// ProtocolBreach is raised when a job detects the peer violated the wire
// protocol (malformed message, state machine in the wrong phase, ...).
type ProtocolBreach struct {
	Message string
	cause   error
}

func (e *ProtocolBreach) Error() string { return e.Message }
func (e *ProtocolBreach) Cause() error  { return e.cause }
func (e *ProtocolBreach) Unwrap() error { return e.cause }

// NewProtocolBreach wraps cause (may be nil) into a ProtocolBreach.
func NewProtocolBreach(message string, cause error) *ProtocolBreach {
	return &ProtocolBreach{Message: message, cause: cause}
}

// SchedulingRejection is constructed by Driver.HandleSchedulingError and
// delivered to the state machine via MarkFailed so the client sees a
// structured failure response instead of a bare disconnect.
type SchedulingRejection struct {
	Code    ErrorCode
	Message string
}

func (e *SchedulingRejection) Error() string { return e.Message }

// NoThreadsAvailableError builds the SchedulingRejection the driver raises
// when the worker pool has exhausted its thread budget for this session id.
func NoThreadsAvailableError(sessionID string) *SchedulingRejection {
	return &SchedulingRejection{
		Code: NoThreadsAvailable,
		Message: fmt.Sprintf(
			"unable to schedule session %q for execution: no worker threads "+
				"available at the moment; retry later or increase the worker "+
				"pool size", sessionID),
	}
}

// UnexpectedError wraps an arbitrary cause that doesn't fall into any of the
// above categories but still forces the connection closed.
func UnexpectedError(sessionID string, cause error) error {
	return errors.Wrapf(cause, "unexpected error in session %q", sessionID)
}

// Interruption is raised when a job's Perform call observes ctx cancelled,
// typically due to server shutdown. Unlike the other fatalities this is
// logged at info level on the internal log only — it isn't a bug.
type Interruption struct {
	Cause error
}

func (e *Interruption) Error() string { return "interrupted: " + e.Cause.Error() }
func (e *Interruption) Unwrap() error { return e.Cause }

// NewInterruption wraps cause (typically context.Canceled) as an Interruption.
func NewInterruption(cause error) *Interruption {
	return &Interruption{Cause: cause}
}

// ErrNoWorkerAvailable is the sentinel a worker pool implementation wraps
// (via errors.Wrap) into the error it passes to Driver.HandleSchedulingError
// to signal thread-pool exhaustion rather than some other scheduling
// failure. Mirrors classifying RejectedExecutionException via cause-chain
// walking the way the Bolt connection driver does it.
var ErrNoWorkerAvailable = errors.New("no worker available to schedule connection")

// IsNoWorkerAvailable reports whether err's cause chain contains
// ErrNoWorkerAvailable.
func IsNoWorkerAvailable(err error) bool {
	return errors.Is(err, ErrNoWorkerAvailable)
}
