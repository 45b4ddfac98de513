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

// Package tracing sets up OpenTelemetry tracing for the reconcile path:
// one span per dispatched cluster event, with child spans around the
// mutating admin-client operations a retry loop may re-invoke, so a single
// reconcile sequence shows up as one trace instead of disconnected log
// lines.
package tracing

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope every span in this repo is
// recorded under.
const TracerName = "github.com/mysql-operator/innodbcluster-operator/pkg/cluster/controller"

// NewProvider builds a TracerProvider. When w is nil, spans are still
// created (every call site can unconditionally start one) but are exported
// nowhere - the zero-configuration default for a cluster that hasn't wired
// an OTLP collector. Passing an io.Writer (e.g. os.Stdout) is meant for
// local development.
func NewProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(resource.NewSchemaless(
			semconv.ServiceName("mysql-operator-controller"),
		)),
	}
	if w != nil {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

// Tracer returns this repo's tracer off the currently installed global
// TracerProvider (installed once at process start by
// cmd/mysql-operator-controller via otel.SetTracerProvider).
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartEvent starts a span for one dispatched cluster event (OnPodCreated,
// OnPodRestarted, OnPodDeleted, OnGroupViewChange), labeled with the
// cluster key and event kind so traces can be filtered per cluster.
func StartEvent(ctx context.Context, event, namespace, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "innodbcluster."+event,
		trace.WithAttributes(
			attribute.String("cluster.namespace", namespace),
			attribute.String("cluster.name", name),
		),
	)
}

// StartAction starts a child span for one mutating admin-client operation
// (create_cluster, join_instance, ...), named "innodbcluster.action."
// followed by that operation name.
func StartAction(ctx context.Context, action string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "innodbcluster.action."+action)
}
