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

// Package probe extracts one MySQL instance's local view of Group
// Replication from a raw SQL session and folds it into the pod record the
// reconciler tracks.
package probe

import (
	"context"
	"time"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
)

// StatusOnline is the GR member state that flips a pod's readiness gate.
const StatusOnline = "ONLINE"

// Result is one instance's probed Group Replication state.
type Result struct {
	MemberID             string
	Role                 string
	Status               string
	ViewID               string
	Version              string
	MemberCount          int
	ReachableMemberCount int
	GTIDExecuted         *string
	GTIDPurged           *string
}

// Probe reads session's local Group Replication view and GTID position.
// The GTID read is best-effort: a failure there (e.g. during recovery) is
// swallowed into nil fields rather than propagated. The group-membership
// read is not best-effort: its failure means the session itself can't
// answer basic questions and is reported as a real error.
func Probe(ctx context.Context, session sqlsession.Session) (Result, error) {
	gs, err := session.GroupStatus(ctx)
	if err != nil {
		return Result{}, err
	}

	reachable := 0
	for _, m := range gs.Members {
		if m.State != "UNREACHABLE" {
			reachable++
		}
	}

	result := Result{
		MemberID:             gs.SelfMemberID,
		Role:                 gs.SelfRole,
		Status:               gs.SelfState,
		ViewID:               gs.ViewID,
		Version:              gs.Version,
		MemberCount:          len(gs.Members),
		ReachableMemberCount: reachable,
	}

	executed, purged, err := session.GTIDExecuted(ctx)
	if err == nil {
		result.GTIDExecuted = executed
		result.GTIDPurged = purged
	}

	return result, nil
}

// ApplyToPod persists a probe result into pod's MembershipInfo, stamping
// LastTransitionTime only when role, status or view id actually changed,
// and returns whether the pod's readiness gate needs to be patched in
// Kubernetes because the probed status flipped it across the ONLINE
// boundary. The caller is responsible for performing that patch via
// pkg/k8sobj.
func ApplyToPod(pod *v1alpha1.MySQLPod, result Result) (readinessChanged bool) {
	if pod.Membership == nil {
		pod.Membership = &v1alpha1.MembershipInfo{}
	}
	m := pod.Membership
	if m.Role != result.Role || m.Status != result.Status || m.ViewID != result.ViewID {
		m.LastTransitionTime = time.Now().UTC()
	}
	m.MemberID = result.MemberID
	m.Role = result.Role
	m.Status = result.Status
	m.ViewID = result.ViewID
	m.Version = result.Version

	desired := result.Status == StatusOnline
	readinessChanged = pod.ReadinessGate != desired
	pod.ReadinessGate = desired
	return readinessChanged
}
