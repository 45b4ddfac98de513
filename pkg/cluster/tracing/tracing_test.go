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

package tracing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/tracing"
)

func TestNewProviderWithoutExporter(t *testing.T) {
	tp, err := tracing.NewProvider(nil)
	require.NoError(t, err)
	require.NotNil(t, tp)
	defer tp.Shutdown(context.Background())
}

func TestStartEventAndAction(t *testing.T) {
	tp, err := tracing.NewProvider(nil)
	require.NoError(t, err)
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	ctx, span := tracing.StartEvent(context.Background(), "on_pod_created", "ns", "cluster-1")
	require.NotNil(t, span)
	assert.True(t, span.SpanContext().IsValid())

	_, child := tracing.StartAction(ctx, "create_cluster")
	assert.True(t, child.SpanContext().IsValid())
	child.End()
	span.End()
}
