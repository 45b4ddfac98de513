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

// Package metrics registers this repo's Prometheus series and implements
// status.Recorder against them.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
)

var allStatuses = []v1alpha1.ClusterDiagStatus{
	v1alpha1.StatusInitializing,
	v1alpha1.StatusOnline,
	v1alpha1.StatusOnlinePartial,
	v1alpha1.StatusOnlineUncertain,
	v1alpha1.StatusOffline,
	v1alpha1.StatusOfflineUncertain,
	v1alpha1.StatusNoQuorum,
	v1alpha1.StatusNoQuorumUncertain,
	v1alpha1.StatusSplitBrain,
	v1alpha1.StatusSplitBrainUncertain,
	v1alpha1.StatusUnknown,
	v1alpha1.StatusInvalid,
	v1alpha1.StatusFinalizing,
}

var (
	clusterStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mysqloperator_cluster_status",
		Help: "1 for the cluster's current diagnosed status, 0 for every other status value, one series per (cluster, status) pair.",
	}, []string{"namespace", "cluster", "status"})

	probeInterval = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mysqloperator_cluster_probe_interval_seconds",
		Help:    "Seconds elapsed between consecutive published diagnoses of a cluster.",
		Buckets: prometheus.DefBuckets,
	}, []string{"namespace", "cluster"})
)

func init() {
	prometheus.MustRegister(clusterStatus, probeInterval)
}

// Recorder implements status.Recorder against the default Prometheus
// registry. Stateless: every method call only touches the package-level
// vectors above.
type Recorder struct{}

// NewRecorder builds a Recorder.
func NewRecorder() Recorder { return Recorder{} }

// ObserveStatus sets the gauge for status to 1 and every other known status
// value to 0, for the given cluster. A fixed enum swept on every call avoids
// the unbounded cardinality (and the race between concurrent reconciles of
// the same cluster) that GaugeVec.Delete-then-Set would risk.
func (Recorder) ObserveStatus(key v1alpha1.ClusterKey, current v1alpha1.ClusterDiagStatus) {
	for _, s := range allStatuses {
		v := 0.0
		if s == current {
			v = 1
		}
		clusterStatus.WithLabelValues(key.Namespace, key.Name, string(s)).Set(v)
	}
}

// ObserveProbeInterval records the time since the previous published
// diagnosis of this cluster.
func (Recorder) ObserveProbeInterval(key v1alpha1.ClusterKey, d time.Duration) {
	probeInterval.WithLabelValues(key.Namespace, key.Name).Observe(d.Seconds())
}
