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

// Package diagnose derives a single authoritative ClusterDiagStatus, plus
// derived facts, from probes collected across every pod of one logical
// cluster, and classifies individual candidate pods against an existing
// cluster.
package diagnose

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/probe"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
)

// ProbeTimeout is the default bound on each individual pod probe,
// overridable per ClusterHandle.
const ProbeTimeout = 5 * time.Second

// MaxConcurrentProbes bounds the probe fan-out.
const MaxConcurrentProbes = 8

// Outcome classifies one pod's probe result independent of the others.
type Outcome string

const (
	OutcomeOnline      Outcome = "ONLINE"
	OutcomeRecovering  Outcome = "RECOVERING"
	OutcomeOffline     Outcome = "OFFLINE"
	OutcomeError       Outcome = "ERROR"
	OutcomeUnreachable Outcome = "UNREACHABLE"
)

// PodDialer opens a raw SQL session to a pod. Supplied by the caller
// (cmd/mysql-operator-controller wires one that opens a sqlsession against
// the pod's endpoint); tests substitute an in-memory double.
type PodDialer func(ctx context.Context, pod v1alpha1.MySQLPod) (sqlsession.Session, error)

// ClusterHandle is the input to DiagnoseCluster: everything about one
// logical cluster's declared and observed pod set.
type ClusterHandle struct {
	Key        v1alpha1.ClusterKey
	Spec       v1alpha1.InnoDBClusterSpec
	CreateTime *time.Time
	Deleting   bool
	Pods       []v1alpha1.MySQLPod
	Dial       PodDialer

	// ProbeTimeout overrides the per-pod probe timeout; zero means the
	// package default ProbeTimeout.
	ProbeTimeout time.Duration
}

func (cl *ClusterHandle) probeTimeout() time.Duration {
	if cl.ProbeTimeout > 0 {
		return cl.ProbeTimeout
	}
	return ProbeTimeout
}

// PodProbe is one pod's classified probe outcome.
type PodProbe struct {
	Pod     v1alpha1.MySQLPod
	Outcome Outcome
	Result  probe.Result
}

// ClusterStatusReport is DiagnoseCluster's output.
type ClusterStatusReport struct {
	Status           v1alpha1.ClusterDiagStatus
	Primary          *v1alpha1.MySQLPod
	OnlineMembers    []v1alpha1.MySQLPod
	QuorumCandidates []v1alpha1.MySQLPod
	GTIDExecuted     map[int]*string
	Probes           []PodProbe
	// DiagnosisID and DiagnosedAt correlate this snapshot with
	// logs/traces; they play no part in classification.
	DiagnosisID string
	DiagnosedAt time.Time
}

// DiagnoseCluster probes every non-deleting pod and derives a single
// cluster status. Probe order never affects the result: classification is
// a pure function of the resulting multiset of outcomes.
func DiagnoseCluster(ctx context.Context, cl *ClusterHandle) (ClusterStatusReport, error) {
	report := ClusterStatusReport{
		DiagnosisID: uuid.NewString(),
		DiagnosedAt: time.Now().UTC(),
	}

	if cl.Deleting {
		report.Status = v1alpha1.StatusFinalizing
		return report, nil
	}
	if len(cl.Pods) == 0 || cl.CreateTime == nil {
		report.Status = v1alpha1.StatusInitializing
		return report, nil
	}

	probes, err := probeAll(ctx, cl)
	if err != nil {
		return report, err
	}
	report.Probes = probes

	report.GTIDExecuted = map[int]*string{}
	for _, p := range probes {
		report.GTIDExecuted[p.Pod.Index] = p.Result.GTIDExecuted
	}

	report.Status, report.QuorumCandidates = classify(probes, int(cl.Spec.Instances))
	report.OnlineMembers = podsWithOutcome(probes, OutcomeOnline)
	report.Primary = findPrimary(probes)
	return report, nil
}

func probeAll(ctx context.Context, cl *ClusterHandle) ([]PodProbe, error) {
	var live []v1alpha1.MySQLPod
	for _, pod := range cl.Pods {
		if !pod.Deleting {
			live = append(live, pod)
		}
	}

	results := make([]PodProbe, len(live))
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, MaxConcurrentProbes)

	for i, pod := range live {
		i, pod := i, pod
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-sem }()

			results[i] = probeOne(gctx, cl, pod)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func probeOne(ctx context.Context, cl *ClusterHandle, pod v1alpha1.MySQLPod) PodProbe {
	probeCtx, cancel := context.WithTimeout(ctx, cl.probeTimeout())
	defer cancel()

	session, err := cl.Dial(probeCtx, pod)
	if err != nil {
		return PodProbe{Pod: pod, Outcome: OutcomeUnreachable}
	}
	defer session.Close()

	result, err := probe.Probe(probeCtx, session)
	if err != nil {
		return PodProbe{Pod: pod, Outcome: OutcomeError}
	}
	return PodProbe{Pod: pod, Outcome: outcomeFromStatus(result.Status), Result: result}
}

func outcomeFromStatus(status string) Outcome {
	switch status {
	case "ONLINE":
		return OutcomeOnline
	case "RECOVERING":
		return OutcomeRecovering
	case "OFFLINE":
		return OutcomeOffline
	default:
		return OutcomeError
	}
}

func podsWithOutcome(probes []PodProbe, outcome Outcome) []v1alpha1.MySQLPod {
	var pods []v1alpha1.MySQLPod
	for _, p := range probes {
		if p.Outcome == outcome {
			pods = append(pods, p.Pod)
		}
	}
	return pods
}

func findPrimary(probes []PodProbe) *v1alpha1.MySQLPod {
	for _, p := range probes {
		if p.Outcome == OutcomeOnline && p.Result.Role == "PRIMARY" {
			pod := p.Pod
			return &pod
		}
	}
	return nil
}
