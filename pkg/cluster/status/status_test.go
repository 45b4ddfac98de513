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

package status_test

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/status"
)

type fakeNotifier struct {
	calls []v1alpha1.ClusterDiagStatus
}

func (f *fakeNotifier) Notify(ctx context.Context, key v1alpha1.ClusterKey, s v1alpha1.ClusterDiagStatus, online int) error {
	f.calls = append(f.calls, s)
	return nil
}

type fakeRecorder struct {
	statusCalls   int
	intervalCalls int
}

func (f *fakeRecorder) ObserveStatus(key v1alpha1.ClusterKey, s v1alpha1.ClusterDiagStatus) {
	f.statusCalls++
}
func (f *fakeRecorder) ObserveProbeInterval(key v1alpha1.ClusterKey, d time.Duration) {
	f.intervalCalls++
}

func TestPublishSkipsAlertOnFirstCertainStatus(t *testing.T) {
	notifier := &fakeNotifier{}
	recorder := &fakeRecorder{}
	p := status.NewPublisher(nil, notifier, recorder, logr.Discard())

	key := v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}
	err := p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnline, DiagnosedAt: time.Now()})
	require.NoError(t, err)

	assert.Empty(t, notifier.calls)
	assert.Equal(t, 1, recorder.statusCalls)
	assert.Equal(t, 0, recorder.intervalCalls)
}

func TestPublishAlertsOnUncertainResolvingToCertain(t *testing.T) {
	notifier := &fakeNotifier{}
	p := status.NewPublisher(nil, notifier, &fakeRecorder{}, logr.Discard())
	key := v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}

	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnlineUncertain, DiagnosedAt: time.Now()}))
	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnline, DiagnosedAt: time.Now().Add(time.Second)}))

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, v1alpha1.StatusOnline, notifier.calls[0])
}

func TestPublishAlertsOnSplitBrainRegardlessOfPriorStatus(t *testing.T) {
	notifier := &fakeNotifier{}
	p := status.NewPublisher(nil, notifier, &fakeRecorder{}, logr.Discard())
	key := v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}

	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnline, DiagnosedAt: time.Now()}))
	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusSplitBrain, DiagnosedAt: time.Now().Add(time.Second)}))

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, v1alpha1.StatusSplitBrain, notifier.calls[0])
}

func TestPublishDoesNotAlertOnRepeatedCertainStatus(t *testing.T) {
	notifier := &fakeNotifier{}
	p := status.NewPublisher(nil, notifier, &fakeRecorder{}, logr.Discard())
	key := v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}

	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnline, DiagnosedAt: time.Now()}))
	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnline, DiagnosedAt: time.Now().Add(time.Second)}))

	assert.Empty(t, notifier.calls)
}

func TestProbeIfNeededReturnsCachedCertainStatusWithoutReprobing(t *testing.T) {
	p := status.NewPublisher(nil, nil, nil, logr.Discard())
	key := v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}
	now := time.Now()

	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnline, DiagnosedAt: now}))

	cl := &diagnose.ClusterHandle{Key: key, Deleting: true}
	report, err := p.ProbeIfNeeded(context.Background(), cl, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusOnline, report.Status)
}

func TestProbeIfNeededReDiagnosesWhenCachedStatusIsUncertain(t *testing.T) {
	p := status.NewPublisher(nil, nil, nil, logr.Discard())
	key := v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}
	now := time.Now()

	require.NoError(t, p.Publish(context.Background(), key, diagnose.ClusterStatusReport{Status: v1alpha1.StatusOnlineUncertain, DiagnosedAt: now}))

	cl := &diagnose.ClusterHandle{Key: key, Deleting: true}
	report, err := p.ProbeIfNeeded(context.Background(), cl, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, v1alpha1.StatusFinalizing, report.Status)
}
