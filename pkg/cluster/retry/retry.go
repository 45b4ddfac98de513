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

// Package retry is a bounded re-invocation wrapper that classifies errors
// via pkg/cluster/errcode and pkg/clustererr, translating transient
// failures into scheduled requeues and permanent ones into hard stops.
//
// Each Loop additionally wraps a sony/gobreaker.CircuitBreaker keyed per
// cluster: when a cluster's admin operations have been failing
// continuously, the breaker trips open and the loop fails fast with a
// longer delay instead of spending its retry budget hammering a struggling
// pod.
package retry

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/errcode"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
)

// DefaultMaxAttempts is the bounded number of invocations (the first call
// included) for a transiently-failing fn before its error is re-raised as a
// Transient error carrying a delay hint.
const DefaultMaxAttempts = 3

// BreakerOpenDelay is the delay surfaced when the circuit breaker is open.
const BreakerOpenDelay = 30 * time.Second

// Settings configures a Loop.
type Settings struct {
	// MaxAttempts bounds the total invocations of a transiently-failing fn.
	// Defaults to DefaultMaxAttempts when zero.
	MaxAttempts int

	// BreakerOpenDelay is how long an open breaker fails fast before
	// probing again, and the delay hint carried on the Transient error
	// surfaced meanwhile. Defaults to BreakerOpenDelay when zero.
	BreakerOpenDelay time.Duration
}

// Loop is a per-cluster retry wrapper. Construct one per cluster (the
// breaker's failure count is meaningless mixed across unrelated clusters).
type Loop struct {
	name     string
	settings Settings
	breaker  *gobreaker.CircuitBreaker
}

// NewLoop builds a Loop for the named cluster (normally its GR cluster
// name), with a breaker that trips after 3 consecutive failures and probes
// again after BreakerOpenDelay.
func NewLoop(name string, settings Settings) *Loop {
	if settings.MaxAttempts == 0 {
		settings.MaxAttempts = DefaultMaxAttempts
	}
	if settings.BreakerOpenDelay == 0 {
		settings.BreakerOpenDelay = BreakerOpenDelay
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     settings.BreakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Loop{name: name, settings: settings, breaker: breaker}
}

// Call invokes fn at most settings.MaxAttempts times in total while it
// keeps returning a non-Permanent error, waiting the classified delay between
// attempts. Exhausting the budget returns the last error as a Transient (a
// Transient from fn unchanged, an unclassified error wrapped into one) so
// the host requeues with its delay hint. A Permanent error is returned
// immediately without retrying.
func (l *Loop) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := l.breaker.Execute(func() (interface{}, error) {
		return nil, l.callWithRetry(ctx, fn)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return clustererr.NewTransient(l.settings.BreakerOpenDelay, "circuit breaker open for cluster "+l.name)
	}
	return err
}

func (l *Loop) callWithRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= l.settings.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if _, ok := clustererr.AsPermanent(err); ok {
			return err
		}

		transient, ok := clustererr.AsTransient(err)
		if !ok {
			// Not yet classified: run it through errcode to decide a delay,
			// then treat it as transient for the purposes of this loop -
			// admin-client errors this repo hasn't named permanent are
			// assumed recoverable.
			delay := errcode.DelayHint(errcode.Other)
			if ae, isAdmin := err.(*errcode.AdminError); isAdmin {
				delay = errcode.DelayHint(ae.Code)
			}
			transient = clustererr.WrapTransient(err, delay, "unclassified admin error")
		}

		if attempt == l.settings.MaxAttempts {
			return transient
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(transient.Delay):
		}
	}
	return lastErr
}
