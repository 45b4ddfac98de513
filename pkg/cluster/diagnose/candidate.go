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
	"context"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/gtid"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/probe"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
)

// CandidateStatus classifies one pod relative to an existing cluster.
type CandidateStatus string

const (
	CandidateMember      CandidateStatus = "MEMBER"
	CandidateJoinable    CandidateStatus = "JOINABLE"
	CandidateRejoinable  CandidateStatus = "REJOINABLE"
	CandidateBroken      CandidateStatus = "BROKEN"
	CandidateUnreachable CandidateStatus = "UNREACHABLE"
)

// DiagnoseCandidate classifies a candidate pod relative to an existing
// cluster's membership and aggregate GTID set. A nil session, or one that
// fails to probe, always yields UNREACHABLE - the caller need not
// special-case dial failures separately.
func DiagnoseCandidate(ctx context.Context, session sqlsession.Session, clusterMembers map[string]bool, clusterGTID gtid.Set) (CandidateStatus, probe.Result) {
	if session == nil {
		return CandidateUnreachable, probe.Result{}
	}
	result, err := probe.Probe(ctx, session)
	if err != nil {
		return CandidateUnreachable, probe.Result{}
	}

	candidateGTID := gtid.Parse(result.GTIDExecuted)
	errant := candidateGTID.Errant(clusterGTID)
	isMember := result.MemberID != "" && clusterMembers[result.MemberID]

	switch {
	case !errant.IsEmpty():
		return CandidateBroken, result
	case isMember && result.Status == "ONLINE":
		return CandidateMember, result
	case isMember:
		return CandidateRejoinable, result
	case candidateGTID.IsEmpty() || candidateGTID.IsSubsetOf(clusterGTID):
		return CandidateJoinable, result
	default:
		return CandidateBroken, result
	}
}
