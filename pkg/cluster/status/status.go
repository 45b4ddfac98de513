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

// Package status writes each diagnosis back to the cluster status
// subresource, records metrics, and alerts on the transitions that matter.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

// Notifier is the external alerting sink (pkg/cluster/notify) this package
// calls on an uncertain-to-certain transition or a move into
// SPLIT_BRAIN(_UNCERTAIN)/INVALID - the states that require human
// intervention.
type Notifier interface {
	Notify(ctx context.Context, key v1alpha1.ClusterKey, status v1alpha1.ClusterDiagStatus, onlineInstances int) error
}

// Recorder is the metrics sink (pkg/cluster/metrics) this package updates on
// every publish.
type Recorder interface {
	ObserveStatus(key v1alpha1.ClusterKey, status v1alpha1.ClusterDiagStatus)
	ObserveProbeInterval(key v1alpha1.ClusterKey, d time.Duration)
}

// ObjectLookup resolves the live cluster object for a key, so Publish can
// post a Kubernetes event without this package holding a second, possibly
// stale, copy of the object itself. Installed once via
// SetClusterObjectLookup, the same seam shape as
// k8sobj.SetClusterStatusBackend: this repo's CRD wiring stays external to
// the domain packages.
type ObjectLookup func(ctx context.Context, key v1alpha1.ClusterKey) (client.Object, error)

var objectLookup ObjectLookup

// SetClusterObjectLookup installs the live-object accessor Publish uses to
// post the "cluster status changed" event. Optional: if never called,
// Publish still updates the status subresource and metrics, it just can't
// post that one event.
func SetClusterObjectLookup(fn ObjectLookup) {
	objectLookup = fn
}

type cachedReport struct {
	report diagnose.ClusterStatusReport
}

// Publisher updates the cluster status subresource after each diagnosis,
// records metrics, and on the transitions that matter posts a Kubernetes
// event and fires an external alert.
type Publisher struct {
	K8s     *k8sobj.Client
	Notify  Notifier
	Metrics Recorder
	Logger  logr.Logger

	mu    sync.Mutex
	cache map[string]cachedReport
}

// NewPublisher builds a Publisher. notifier and recorder may be nil (e.g. in
// tests); k8s may also be nil, in which case Publish skips the status
// subresource patch and the Kubernetes event but still updates the in-memory
// cache used by ProbeIfNeeded, records metrics and sends alerts.
func NewPublisher(k8s *k8sobj.Client, notifier Notifier, recorder Recorder, logger logr.Logger) *Publisher {
	return &Publisher{K8s: k8s, Notify: notifier, Metrics: recorder, Logger: logger, cache: map[string]cachedReport{}}
}

// Publish records report as the cluster's latest diagnosis. Never called
// for a cluster marked for deletion - callers (pkg/cluster/controller's
// probeStatus) already guard that.
func (p *Publisher) Publish(ctx context.Context, key v1alpha1.ClusterKey, report diagnose.ClusterStatusReport) error {
	p.mu.Lock()
	prev, had := p.cache[key.String()]
	p.cache[key.String()] = cachedReport{report: report}
	p.mu.Unlock()

	if p.Metrics != nil {
		p.Metrics.ObserveStatus(key, report.Status)
		if had {
			p.Metrics.ObserveProbeInterval(key, report.DiagnosedAt.Sub(prev.report.DiagnosedAt))
		}
	}

	transitioned := !had || prev.report.Status != report.Status
	if transitioned {
		p.postStatusChangeEvent(ctx, key, report)
		if p.Notify != nil && shouldAlert(had, prev.report.Status, report.Status) {
			if err := p.Notify.Notify(ctx, key, report.Status, len(report.OnlineMembers)); err != nil {
				p.Logger.Error(err, "failed to send cluster status alert", "cluster", key)
			}
		}
	}

	if p.K8s == nil {
		return nil
	}
	return p.K8s.PatchClusterStatus(ctx, key, func(status *v1alpha1.ClusterStatus) {
		status.Status = report.Status
		status.OnlineInstances = len(report.OnlineMembers)
		status.LastProbeTime = report.DiagnosedAt
		status.DiagnosisID = report.DiagnosisID
	})
}

// Snapshot returns the last published diagnosis for key, for read-only
// consumers (pkg/httpapi) that must never trigger a reconciliation action
// themselves.
func (p *Publisher) Snapshot(key v1alpha1.ClusterKey) (diagnose.ClusterStatusReport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.cache[key.String()]
	return c.report, ok
}

// SnapshotAll returns every cached diagnosis, keyed by "namespace/name".
func (p *Publisher) SnapshotAll() map[string]diagnose.ClusterStatusReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]diagnose.ClusterStatusReport, len(p.cache))
	for k, v := range p.cache {
		out[k] = v.report
	}
	return out
}

func (p *Publisher) postStatusChangeEvent(ctx context.Context, key v1alpha1.ClusterKey, report diagnose.ClusterStatusReport) {
	if p.K8s == nil || objectLookup == nil {
		return
	}
	obj, err := objectLookup(ctx, key)
	if err != nil || obj == nil {
		return
	}
	p.K8s.Eventf(obj, "Normal", k8sobj.ReasonDiagnosed, "cluster status changed to %s (%d instance(s) online)", report.Status, len(report.OnlineMembers))
}

// shouldAlert decides whether a status transition is worth an external
// alert, not just the routine k8s event: any move into a SPLIT_BRAIN or
// INVALID state, or an uncertain state resolving to a certain one (the
// moment an operator's "is this actually broken?" question gets answered).
func shouldAlert(had bool, prevStatus, newStatus v1alpha1.ClusterDiagStatus) bool {
	if newStatus.IsSplitBrain() || newStatus == v1alpha1.StatusInvalid {
		return true
	}
	return had && prevStatus.IsUncertain() && !newStatus.IsUncertain()
}

// ProbeIfNeeded short-circuits a full diagnosis: if the last published one
// postdates podLastTransition and was a certain (non-_UNCERTAIN) state, the
// cached report is returned as-is; otherwise a full re-diagnosis runs and,
// for a non-deleting cluster, is published.
func (p *Publisher) ProbeIfNeeded(ctx context.Context, cl *diagnose.ClusterHandle, podLastTransition time.Time) (diagnose.ClusterStatusReport, error) {
	p.mu.Lock()
	prev, had := p.cache[cl.Key.String()]
	p.mu.Unlock()
	if had && !prev.report.Status.IsUncertain() && prev.report.DiagnosedAt.After(podLastTransition) {
		return prev.report, nil
	}

	report, err := diagnose.DiagnoseCluster(ctx, cl)
	if err != nil {
		return report, err
	}
	if !cl.Deleting {
		if err := p.Publish(ctx, cl.Key, report); err != nil {
			p.Logger.Error(err, "failed to publish cluster status", "cluster", cl.Key)
		}
	}
	return report, nil
}
