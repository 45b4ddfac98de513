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

package diagnose

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/probe"
)

func pod(index int) v1alpha1.MySQLPod {
	return v1alpha1.MySQLPod{Index: index, Name: "pod", Cluster: v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"}}
}

// memberProbe is an ONLINE group member reporting its local membership
// table: members configured in the group, reachable of them reachable.
func memberProbe(index int, viewID, role string, members, reachable int) PodProbe {
	return PodProbe{Pod: pod(index), Outcome: OutcomeOnline, Result: probe.Result{
		Status:               "ONLINE",
		ViewID:               viewID,
		Role:                 role,
		MemberCount:          members,
		ReachableMemberCount: reachable,
	}}
}

func TestClassifyAllOnlineFullMembership(t *testing.T) {
	probes := []PodProbe{
		memberProbe(0, "view-1", "PRIMARY", 3, 3),
		memberProbe(1, "view-1", "SECONDARY", 3, 3),
		memberProbe(2, "view-1", "SECONDARY", 3, 3),
	}
	status, candidates := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusOnline, status)
	assert.Len(t, candidates, 3)
}

func TestClassifyOnlineForFreshlySeededSingleMember(t *testing.T) {
	// A one-member group has quorum over its own membership by
	// construction; the declared instances without pods yet must not turn
	// this into NO_QUORUM (or anything else that triggers repair).
	probes := []PodProbe{memberProbe(0, "view-1", "PRIMARY", 1, 1)}
	status, _ := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusOnline, status)
}

func TestClassifyScaleUpProgression(t *testing.T) {
	// Seed pod alone: ONLINE.
	status, _ := classify([]PodProbe{memberProbe(0, "view-1", "PRIMARY", 1, 1)}, 3)
	assert.Equal(t, v1alpha1.StatusOnline, status)

	// Second pod exists but isn't a group member yet: ONLINE_PARTIAL.
	status, _ = classify([]PodProbe{
		memberProbe(0, "view-1", "PRIMARY", 1, 1),
		{Pod: pod(1), Outcome: OutcomeError, Result: probe.Result{Status: "ERROR"}},
	}, 3)
	assert.Equal(t, v1alpha1.StatusOnlinePartial, status)

	// Second pod joined: ONLINE again while pod-2 doesn't exist yet.
	status, _ = classify([]PodProbe{
		memberProbe(0, "view-2", "PRIMARY", 2, 2),
		memberProbe(1, "view-2", "SECONDARY", 2, 2),
	}, 3)
	assert.Equal(t, v1alpha1.StatusOnline, status)

	// All three joined: ONLINE at full declared size.
	status, _ = classify([]PodProbe{
		memberProbe(0, "view-3", "PRIMARY", 3, 3),
		memberProbe(1, "view-3", "SECONDARY", 3, 3),
		memberProbe(2, "view-3", "SECONDARY", 3, 3),
	}, 3)
	assert.Equal(t, v1alpha1.StatusOnline, status)
}

func TestClassifyOnlinePartialWhileNewPodJoins(t *testing.T) {
	probes := []PodProbe{
		memberProbe(0, "view-1", "PRIMARY", 2, 2),
		memberProbe(1, "view-1", "SECONDARY", 2, 2),
		{Pod: pod(2), Outcome: OutcomeError, Result: probe.Result{Status: "ERROR"}},
	}
	status, _ := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusOnlinePartial, status)
}

func TestClassifyUncertainSuffixWhenAnyUnreachable(t *testing.T) {
	probes := []PodProbe{
		memberProbe(0, "view-1", "PRIMARY", 3, 2),
		memberProbe(1, "view-1", "SECONDARY", 3, 2),
		{Pod: pod(2), Outcome: OutcomeUnreachable},
	}
	status, _ := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusOnlineUncertain, status)
}

func TestClassifySplitBrainOnDivergedViews(t *testing.T) {
	probes := []PodProbe{
		memberProbe(0, "view-a", "PRIMARY", 2, 2),
		memberProbe(1, "view-b", "PRIMARY", 2, 2),
	}
	status, _ := classify(probes, 2)
	assert.Equal(t, v1alpha1.StatusSplitBrain, status)
}

func TestClassifyOfflineWhenAllReachableReportOffline(t *testing.T) {
	probes := []PodProbe{
		{Pod: pod(0), Outcome: OutcomeOffline, Result: probe.Result{Status: "OFFLINE"}},
		{Pod: pod(1), Outcome: OutcomeOffline, Result: probe.Result{Status: "OFFLINE"}},
		{Pod: pod(2), Outcome: OutcomeOffline, Result: probe.Result{Status: "OFFLINE"}},
	}
	status, _ := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusOffline, status)
}

func TestClassifyNoQuorumWithLoneSurvivor(t *testing.T) {
	// The survivor's own membership table still lists all three members,
	// two of them unreachable: its group has lost quorum.
	probes := []PodProbe{
		memberProbe(0, "view-1", "PRIMARY", 3, 1),
		{Pod: pod(1), Outcome: OutcomeUnreachable},
		{Pod: pod(2), Outcome: OutcomeUnreachable},
	}
	status, candidates := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusNoQuorum, status)
	assert.Len(t, candidates, 1)
	assert.Equal(t, 0, candidates[0].Index)
}

func TestClassifyNoQuorumUncertainOnInconclusivePeer(t *testing.T) {
	probes := []PodProbe{
		memberProbe(0, "view-1", "PRIMARY", 3, 1),
		{Pod: pod(1), Outcome: OutcomeError, Result: probe.Result{Status: "ERROR"}},
		{Pod: pod(2), Outcome: OutcomeUnreachable},
	}
	status, _ := classify(probes, 3)
	assert.Equal(t, v1alpha1.StatusNoQuorumUncertain, status)
}

func TestClassifyUnknownWhenNothingReachable(t *testing.T) {
	probes := []PodProbe{
		{Pod: pod(0), Outcome: OutcomeUnreachable},
		{Pod: pod(1), Outcome: OutcomeUnreachable},
	}
	status, _ := classify(probes, 2)
	assert.Equal(t, v1alpha1.StatusUnknown, status)
}

func TestClassifyInvalidOnStructuralContradiction(t *testing.T) {
	probes := []PodProbe{
		{Pod: pod(0), Outcome: OutcomeError, Result: probe.Result{Status: "ERROR"}},
	}
	status, _ := classify(probes, 1)
	assert.Equal(t, v1alpha1.StatusInvalid, status)
}
