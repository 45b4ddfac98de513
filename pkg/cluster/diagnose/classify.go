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
	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
)

// classify maps a set of probe outcomes to a cluster status through an
// ordered chain of predicate functions, first match wins, given that the
// caller has already handled the FINALIZING and INITIALIZING cases (those
// depend on cluster-level facts classify doesn't see). Every predicate is
// individually testable.
func classify(probes []PodProbe, declaredInstances int) (v1alpha1.ClusterDiagStatus, []v1alpha1.MySQLPod) {
	uncertain := anyUnreachable(probes)

	if status, ok := matchOnlineOrPartial(probes, declaredInstances, uncertain); ok {
		return status, quorumViewGroups(probes, declaredInstances)
	}
	if status, ok := matchSplitBrain(probes, uncertain); ok {
		return status, nil
	}
	if status, ok := matchOffline(probes, uncertain); ok {
		return status, nil
	}
	// A minority survivor reporting NO_QUORUM while its absent peers are
	// UNREACHABLE is the expected, fully-diagnostic shape of this status:
	// unreachable peers here are the lost majority, not missing
	// information about this diagnosis. What makes a NO_QUORUM diagnosis
	// genuinely uncertain is a reachable peer answering with ERROR instead
	// of a clean GR state.
	if status, ok := matchNoQuorum(probes, anyError(probes)); ok {
		return status, noQuorumCandidates(probes)
	}
	if status, ok := matchUnknown(probes); ok {
		return status, nil
	}
	return v1alpha1.StatusInvalid, nil
}

func anyUnreachable(probes []PodProbe) bool {
	for _, p := range probes {
		if p.Outcome == OutcomeUnreachable {
			return true
		}
	}
	return false
}

func anyError(probes []PodProbe) bool {
	for _, p := range probes {
		if p.Outcome == OutcomeError {
			return true
		}
	}
	return false
}

func withUncertainty(status v1alpha1.ClusterDiagStatus, uncertain bool) v1alpha1.ClusterDiagStatus {
	if uncertain {
		return status + "_UNCERTAIN"
	}
	return status
}

// viewGroups collects the non-empty view ids reported by pods that are
// part of a group (ONLINE or RECOVERING), mapped to the pods reporting each.
func viewGroups(probes []PodProbe) map[string][]v1alpha1.MySQLPod {
	groups := map[string][]v1alpha1.MySQLPod{}
	for _, p := range probes {
		if (p.Outcome == OutcomeOnline || p.Outcome == OutcomeRecovering) && p.Result.ViewID != "" {
			groups[p.Result.ViewID] = append(groups[p.Result.ViewID], p.Pod)
		}
	}
	return groups
}

func isMajority(count, declaredInstances int) bool {
	return count > declaredInstances/2
}

// groupHasQuorum reports whether the probed group can still reach a
// majority of its own configured membership, as seen by its reporting
// members. GR defines quorum over the group's membership table, never over
// the declared instance count: a freshly seeded one-member group has
// quorum by construction even while the remaining declared instances are
// still being added. A member that can't report its membership table at
// all lands in ERROR, so when no member reports one there is no evidence
// for a no-quorum verdict and the group is taken as coherent.
func groupHasQuorum(probes []PodProbe) bool {
	informed := false
	for _, p := range probes {
		if p.Outcome != OutcomeOnline && p.Outcome != OutcomeRecovering {
			continue
		}
		if p.Result.MemberCount == 0 {
			continue
		}
		informed = true
		if p.Result.ReachableMemberCount*2 > p.Result.MemberCount {
			return true
		}
	}
	return !informed
}

// matchOnlineOrPartial: all reachable pods agree on the same view id and
// the group itself still has quorum over its own membership. ONLINE means
// every existing pod is an online member; a declared instance with no pod
// yet (mid scale-up) doesn't make a healthy group "partial", a pod that
// exists but isn't an online member does.
func matchOnlineOrPartial(probes []PodProbe, declaredInstances int, uncertain bool) (v1alpha1.ClusterDiagStatus, bool) {
	groups := viewGroups(probes)
	if len(groups) != 1 {
		return "", false
	}
	if !groupHasQuorum(probes) {
		return "", false
	}
	// There is a single ONLINE_UNCERTAIN value, not a separate
	// "partial-and-uncertain" variant: uncertainty collapses the
	// full/partial distinction.
	if uncertain {
		return v1alpha1.StatusOnlineUncertain, true
	}
	onlineCount := 0
	for _, p := range probes {
		if p.Outcome == OutcomeOnline {
			onlineCount++
		}
	}
	if onlineCount == len(probes) || onlineCount >= declaredInstances {
		return v1alpha1.StatusOnline, true
	}
	return v1alpha1.StatusOnlinePartial, true
}

// matchSplitBrain: reachable pods disagree on view id. A per-pod probe
// cannot see another view's full member list, so any disagreement among
// reachable group members is treated as overlapping membership.
func matchSplitBrain(probes []PodProbe, uncertain bool) (v1alpha1.ClusterDiagStatus, bool) {
	groups := viewGroups(probes)
	if len(groups) <= 1 {
		return "", false
	}
	return withUncertainty(v1alpha1.StatusSplitBrain, uncertain), true
}

// matchOffline: all reachable pods report OFFLINE.
func matchOffline(probes []PodProbe, uncertain bool) (v1alpha1.ClusterDiagStatus, bool) {
	reachable := 0
	offline := 0
	for _, p := range probes {
		if p.Outcome == OutcomeUnreachable {
			continue
		}
		reachable++
		if p.Outcome == OutcomeOffline {
			offline++
		}
	}
	if reachable == 0 || offline != reachable {
		return "", false
	}
	return withUncertainty(v1alpha1.StatusOffline, uncertain), true
}

// matchNoQuorum: pods still answer as group members but their group has
// lost a majority of its own membership - GR refuses writes in this state
// even though the surviving members still report themselves ONLINE.
func matchNoQuorum(probes []PodProbe, uncertain bool) (v1alpha1.ClusterDiagStatus, bool) {
	members := 0
	for _, p := range probes {
		if p.Outcome == OutcomeOnline || p.Outcome == OutcomeRecovering {
			members++
		}
	}
	if members == 0 {
		return "", false
	}
	if groupHasQuorum(probes) {
		return "", false
	}
	return withUncertainty(v1alpha1.StatusNoQuorum, uncertain), true
}

// matchUnknown: no pod is reachable at all.
func matchUnknown(probes []PodProbe) (v1alpha1.ClusterDiagStatus, bool) {
	for _, p := range probes {
		if p.Outcome != OutcomeUnreachable {
			return "", false
		}
	}
	return v1alpha1.StatusUnknown, true
}

func quorumViewGroups(probes []PodProbe, declaredInstances int) []v1alpha1.MySQLPod {
	var candidates []v1alpha1.MySQLPod
	for _, group := range viewGroups(probes) {
		if isMajority(len(group), declaredInstances) {
			candidates = append(candidates, group...)
		}
	}
	return candidates
}

// noQuorumCandidates falls back to the largest surviving view group as the
// set a forced quorum can be attempted against.
func noQuorumCandidates(probes []PodProbe) []v1alpha1.MySQLPod {
	groups := viewGroups(probes)
	var best []v1alpha1.MySQLPod
	for _, group := range groups {
		if len(group) > len(best) {
			best = group
		}
	}
	return best
}
