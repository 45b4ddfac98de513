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

package diagnose_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/gtid"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
)

func strp(s string) *string { return &s }

func TestDiagnoseCandidateUnreachableWhenNoSession(t *testing.T) {
	status, _ := diagnose.DiagnoseCandidate(context.Background(), nil, nil, gtid.Set{})
	assert.Equal(t, diagnose.CandidateUnreachable, status)
}

func TestDiagnoseCandidateMemberWhenOnlineAndKnown(t *testing.T) {
	session := &scriptedSession{
		status: onlineGroupStatus("uuid-0", "view-1", 1),
		gtid:   "a:1-10",
	}
	clusterGTID := gtid.Parse(strp("a:1-10"))
	members := map[string]bool{"uuid-0": true}

	status, result := diagnose.DiagnoseCandidate(context.Background(), session, members, clusterGTID)
	assert.Equal(t, diagnose.CandidateMember, status)
	assert.Equal(t, "uuid-0", result.MemberID)
}

func TestDiagnoseCandidateRejoinableWhenKnownButNotOnline(t *testing.T) {
	session := &scriptedSession{
		status: sqlsession.GroupStatus{SelfMemberID: "uuid-0", SelfState: "OFFLINE", ViewID: "view-1"},
		gtid:   "a:1-10",
	}
	clusterGTID := gtid.Parse(strp("a:1-10"))
	members := map[string]bool{"uuid-0": true}

	status, _ := diagnose.DiagnoseCandidate(context.Background(), session, members, clusterGTID)
	assert.Equal(t, diagnose.CandidateRejoinable, status)
}

func TestDiagnoseCandidateJoinableWhenUnknownAndSubset(t *testing.T) {
	session := &scriptedSession{
		status: sqlsession.GroupStatus{SelfMemberID: "uuid-new", SelfState: "OFFLINE"},
		gtid:   "a:1-3",
	}
	clusterGTID := gtid.Parse(strp("a:1-10"))
	members := map[string]bool{"uuid-0": true}

	status, _ := diagnose.DiagnoseCandidate(context.Background(), session, members, clusterGTID)
	assert.Equal(t, diagnose.CandidateJoinable, status)
}

func TestDiagnoseCandidateBrokenOnErrantTransactions(t *testing.T) {
	session := &scriptedSession{
		status: sqlsession.GroupStatus{SelfMemberID: "uuid-new", SelfState: "OFFLINE"},
		gtid:   "a:1-3,a:50-51",
	}
	clusterGTID := gtid.Parse(strp("a:1-10"))
	members := map[string]bool{"uuid-0": true}

	status, _ := diagnose.DiagnoseCandidate(context.Background(), session, members, clusterGTID)
	assert.Equal(t, diagnose.CandidateBroken, status)
}
