// Copyright (c) 2026 The InnoDB Cluster Operator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package clustererr distinguishes the two error kinds the reconciler's
// host framework cares about: Transient (safe to retry, carries a delay
// hint) and Permanent (human intervention required; stop requeuing).
// Swallowed errors are just logged by the caller and never reach this
// package. Both types satisfy the standard error interface, so
// pkg/cluster/retry classifies errors by value instead of catching
// framework-specific exceptions.
package clustererr

import (
	"errors"
	"time"

	faster "github.com/go-faster/errors"
)

// Transient indicates the operation failed in a way that is safe and likely
// to succeed if retried after Delay.
type Transient struct {
	Delay  time.Duration
	Reason string
	Cause  error
}

func (e *Transient) Error() string {
	if e.Cause != nil {
		return faster.Wrap(e.Cause, e.Reason).Error()
	}
	return e.Reason
}

func (e *Transient) Unwrap() error { return e.Cause }

// Permanent indicates the operation cannot succeed without human
// intervention; the host must stop requeuing the object.
type Permanent struct {
	Reason string
	Cause  error
}

func (e *Permanent) Error() string {
	if e.Cause != nil {
		return faster.Wrap(e.Cause, e.Reason).Error()
	}
	return e.Reason
}

func (e *Permanent) Unwrap() error { return e.Cause }

// NewTransient builds a Transient error with no underlying cause.
func NewTransient(delay time.Duration, reason string) *Transient {
	return &Transient{Delay: delay, Reason: reason}
}

// WrapTransient builds a Transient error wrapping cause.
func WrapTransient(cause error, delay time.Duration, reason string) *Transient {
	return &Transient{Delay: delay, Reason: reason, Cause: cause}
}

// NewPermanent builds a Permanent error with no underlying cause.
func NewPermanent(reason string) *Permanent {
	return &Permanent{Reason: reason}
}

// WrapPermanent builds a Permanent error wrapping cause.
func WrapPermanent(cause error, reason string) *Permanent {
	return &Permanent{Reason: reason, Cause: cause}
}

// AsTransient reports whether err is (or wraps) a *Transient.
func AsTransient(err error) (*Transient, bool) {
	var t *Transient
	if errors.As(err, &t) {
		return t, true
	}
	return nil, false
}

// AsPermanent reports whether err is (or wraps) a *Permanent.
func AsPermanent(err error) (*Permanent, bool) {
	var p *Permanent
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}
