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

// Package obslog sets up the process-wide structured logger: zap underneath,
// exposed as a logr.Logger since that's what controller-runtime and this
// repo's reconciler plumbing expect everywhere.
package obslog

import (
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. development=true switches to a
// human-readable console encoder with debug level; production uses JSON at
// info level for machine-parseable cluster logs.
func New(development bool) logr.Logger {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder
	}
	zl, err := cfg.Build()
	if err != nil {
		// Logger construction only fails on malformed static config; fall
		// back to a no-op rather than letting a logging bug take the
		// process down before it can log anything about it.
		zl = zap.NewNop()
	}
	return zapr.NewLogger(zl)
}

// Fields is a chainable helper for attaching the standard key set this repo
// logs consistently, built directly on logr's key-value pairs instead of a
// map, since logr is the logger interface used everywhere here.
type Fields []interface{}

// NewFields starts an empty chain.
func NewFields() Fields { return Fields{} }

// Cluster attaches the cluster's namespace/name.
func (f Fields) Cluster(namespace, name string) Fields {
	return append(f, "cluster.namespace", namespace, "cluster.name", name)
}

// Pod attaches a pod's name and index.
func (f Fields) Pod(name string, index int) Fields {
	return append(f, "pod.name", name, "pod.index", index)
}

// Status attaches a diagnosed cluster status.
func (f Fields) Status(status string) Fields {
	return append(f, "status", status)
}

// Duration attaches an elapsed duration in milliseconds.
func (f Fields) Duration(d time.Duration) Fields {
	return append(f, "duration_ms", d.Milliseconds())
}

// Err attaches an error, a no-op when err is nil so call sites don't need to
// branch just to avoid logging an empty error field.
func (f Fields) Err(err error) Fields {
	if err == nil {
		return f
	}
	return append(f, "error", err.Error())
}
