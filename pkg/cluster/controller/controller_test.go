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

package controller_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/controller"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/errcode"
	adminfake "github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mysqladmin/fake"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/retry"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

// TestMain installs an in-memory ClusterStatus backend once for the whole
// package: k8sobj.PatchClusterStatus delegates to whatever backend
// SetClusterStatusBackend installed (the real one is wired in
// cmd/mysql-operator-controller against the CRD status subresource).
func TestMain(m *testing.M) {
	var mu sync.Mutex
	statuses := map[string]*v1alpha1.ClusterStatus{}
	k8sobj.SetClusterStatusBackend(
		func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey) (*v1alpha1.ClusterStatus, error) {
			mu.Lock()
			defer mu.Unlock()
			if s, ok := statuses[key.String()]; ok {
				cp := *s
				return &cp, nil
			}
			return &v1alpha1.ClusterStatus{}, nil
		},
		func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey, status *v1alpha1.ClusterStatus) error {
			mu.Lock()
			defer mu.Unlock()
			cp := *status
			statuses[key.String()] = &cp
			return nil
		},
	)
	os.Exit(m.Run())
}

// scriptedSession is a minimal in-memory sqlsession.Session double, the
// same shape pkg/cluster/diagnose's own tests use, kept package-local since
// Go test doubles aren't exported across package boundaries.
type scriptedSession struct {
	status sqlsession.GroupStatus
	gtid   string
}

func (s *scriptedSession) Identity(ctx context.Context) (sqlsession.ServerIdentity, error) {
	return sqlsession.ServerIdentity{ServerUUID: s.status.SelfMemberID}, nil
}
func (s *scriptedSession) GTIDExecuted(ctx context.Context) (*string, *string, error) {
	return &s.gtid, nil, nil
}
func (s *scriptedSession) GroupStatus(ctx context.Context) (sqlsession.GroupStatus, error) {
	return s.status, nil
}
func (s *scriptedSession) StopGroupReplication(ctx context.Context) error { return nil }
func (s *scriptedSession) GrantsExist(ctx context.Context, user string) (bool, error) {
	return false, nil
}
func (s *scriptedSession) Close() error { return nil }

func onlineStatus(selfID string, role string, members ...string) sqlsession.GroupStatus {
	gs := sqlsession.GroupStatus{SelfMemberID: selfID, SelfRole: role, SelfState: "ONLINE", ViewID: "view-1", Version: "8.0.39"}
	for _, m := range members {
		gs.Members = append(gs.Members, sqlsession.MemberRow{MemberID: m, Role: "SECONDARY", State: "ONLINE"})
	}
	return gs
}

func testPod(index int, name, endpoint string) *v1alpha1.MySQLPod {
	return &v1alpha1.MySQLPod{
		Cluster:      v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"},
		Index:        index,
		Name:         name,
		Endpoint:     endpoint,
		EndpointCO:   v1alpha1.EndpointConnectOptions{Endpoint: endpoint},
		PodIPAddress: fmt.Sprintf("10.0.0.%d", index+1),
	}
}

func newTestController(t *testing.T, admin *adminfake.Client, pods []v1alpha1.MySQLPod) *controller.ClusterController {
	t.Helper()

	objs := make([]*corev1.Pod, 0, len(pods))
	for _, p := range pods {
		objs = append(objs, &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: p.Cluster.Namespace, Name: p.Name}})
	}
	builder := fake.NewClientBuilder()
	for _, o := range objs {
		builder = builder.WithObjects(o)
	}
	k8s := k8sobj.New(builder.Build(), record.NewFakeRecorder(20))

	return &controller.ClusterController{
		Admin:  admin,
		K8s:    k8s,
		Dial:   func(ctx context.Context, pod v1alpha1.MySQLPod) (sqlsession.Session, error) { return admin.Sessions[pod.Endpoint], nil },
		Retry:  retry.NewLoop("test", retry.Settings{MaxAttempts: retry.DefaultMaxAttempts}),
		Logger: logr.Discard(),
		Cluster: controller.ClusterState{
			Key:              v1alpha1.ClusterKey{Namespace: "ns", Name: "c1"},
			Spec:             v1alpha1.InnoDBClusterSpec{Instances: int32(len(pods))},
			Pods:             pods,
			IPAllowlistExtra: "127.0.0.1/8,::1/128",
			RouterAccount:    controller.Account{User: "mysqlrouter", Password: "secret"},
		},
	}
}

func TestCreateClusterAddsFinalizerAndCreatesAdminCluster(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	pod := testPod(0, "c1-0", "c1-0.c1:3306")
	admin.Sessions[pod.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-5"}

	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*pod})
	cc.Cluster.Spec.Instances = 1

	err := cc.CreateCluster(context.Background(), pod)
	require.NoError(t, err)

	assert.True(t, pod.HasMemberFinalizer)
	assert.True(t, admin.Cluster().Exists)
	assert.Equal(t, []string{pod.Endpoint}, admin.Cluster().Members)
	require.NotNil(t, pod.Membership)
	assert.Equal(t, "ONLINE", pod.Membership.Status)
	assert.True(t, pod.ReadinessGate)

	// single-instance cluster triggers PostCreateActions inline.
	var sawSetupRouter bool
	for _, inv := range admin.Calls() {
		if inv.Call == adminfake.CallSetupRouter {
			sawSetupRouter = true
		}
	}
	assert.True(t, sawSetupRouter)
}

func TestCreateClusterRemovesFinalizerOnFailure(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	pod := testPod(0, "c1-0", "c1-0.c1:3306")
	admin.Sessions[pod.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-5"}
	admin.ScriptError(adminfake.CallCreateCluster, assertErr("boom"), false)

	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*pod})

	err := cc.CreateCluster(context.Background(), pod)
	require.Error(t, err)
	assert.False(t, pod.HasMemberFinalizer)
}

func TestJoinInstanceAddsPodAndProbesStatus(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	seed := testPod(0, "c1-0", "c1-0.c1:3306")
	joiner := testPod(1, "c1-1", "c1-1.c1:3306")
	admin.Sessions[seed.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-10"}
	admin.Sessions[joiner.Endpoint] = &scriptedSession{status: onlineStatus("uuid-1", "SECONDARY", "uuid-0"), gtid: "a:1-10"}

	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*seed, *joiner})
	_ = cc.CreateCluster(context.Background(), seed)

	err := cc.JoinInstance(context.Background(), joiner, admin.Sessions[joiner.Endpoint])
	require.NoError(t, err)

	assert.True(t, joiner.HasMemberFinalizer)
	assert.Contains(t, admin.Cluster().Members, joiner.Endpoint)
	require.NotNil(t, joiner.Membership)
	assert.Equal(t, "ONLINE", joiner.Membership.Status)
}

func TestJoinInstanceRetriesWithCloneOnFailure(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	seed := testPod(0, "c1-0", "c1-0.c1:3306")
	joiner := testPod(1, "c1-1", "c1-1.c1:3306")
	admin.Sessions[seed.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-10"}
	admin.Sessions[joiner.Endpoint] = &scriptedSession{status: onlineStatus("uuid-1", "SECONDARY", "uuid-0"), gtid: "a:1-10"}
	admin.ScriptErrorFor(adminfake.CallAddInstance, joiner.Endpoint, assertErr("incremental recovery failed"), false)

	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*seed, *joiner})
	_ = cc.CreateCluster(context.Background(), seed)

	err := cc.JoinInstance(context.Background(), joiner, admin.Sessions[joiner.Endpoint])
	require.NoError(t, err)
	assert.Contains(t, admin.Cluster().Members, joiner.Endpoint)
}

func TestRemoveInstanceGracefulSucceeds(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	seed := testPod(0, "c1-0", "c1-0.c1:3306")
	leaving := testPod(1, "c1-1", "c1-1.c1:3306")
	admin.Sessions[seed.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY", "uuid-1"), gtid: "a:1-10"}
	admin.Sessions[leaving.Endpoint] = &scriptedSession{status: onlineStatus("uuid-1", "SECONDARY", "uuid-0"), gtid: "a:1-10"}

	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*seed, *leaving})
	require.NoError(t, cc.CreateCluster(context.Background(), seed))
	require.NoError(t, cc.JoinInstance(context.Background(), leaving, admin.Sessions[leaving.Endpoint]))
	require.Contains(t, admin.Cluster().Members, leaving.Endpoint)

	err := cc.RemoveInstance(context.Background(), leaving, false)
	require.NoError(t, err)
	assert.False(t, leaving.HasMemberFinalizer)
	assert.NotContains(t, admin.Cluster().Members, leaving.Endpoint)
}

func TestRemoveInstanceToleratesMissingMetadataFromPeer(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	seed := testPod(0, "c1-0", "c1-0.c1:3306")
	leaving := testPod(1, "c1-1", "c1-1.c1:3306")
	admin.Sessions[seed.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-10"}
	admin.ScriptErrorFor(adminfake.CallRemoveInstance, leaving.Endpoint, adminMemberMetadataMissing(), false)

	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*seed, *leaving})
	_ = cc.CreateCluster(context.Background(), seed)

	err := cc.RemoveInstance(context.Background(), leaving, false)
	require.NoError(t, err)
	assert.False(t, leaving.HasMemberFinalizer)
}

func TestRebootClusterReseedsAndRejoinsEveryOtherPod(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	pods := []v1alpha1.MySQLPod{*testPod(0, "c1-0", "c1-0.c1:3306"), *testPod(1, "c1-1", "c1-1.c1:3306")}
	admin.Sessions[pods[0].Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-10"}
	admin.Sessions[pods[1].Endpoint] = &scriptedSession{status: onlineStatus("uuid-1", "SECONDARY", "uuid-0"), gtid: "a:1-10"}

	cc := newTestController(t, admin, pods)

	err := cc.RebootCluster(context.Background(), 0)
	require.NoError(t, err)

	assert.True(t, admin.Cluster().Exists)
	assert.Contains(t, admin.Cluster().Members, pods[1].Endpoint)
}

func TestRepairClusterForcesQuorumFromCandidate(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	survivor := testPod(0, "c1-0", "c1-0.c1:3306")
	admin.Sessions[survivor.Endpoint] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-10"}
	cc := newTestController(t, admin, []v1alpha1.MySQLPod{*survivor})
	require.NoError(t, cc.CreateCluster(context.Background(), survivor))

	report := diagnose.ClusterStatusReport{
		Status:           v1alpha1.StatusNoQuorum,
		QuorumCandidates: []v1alpha1.MySQLPod{*survivor},
	}
	err := cc.RepairCluster(context.Background(), report)
	require.NoError(t, err)

	var sawForceQuorum bool
	for _, inv := range admin.Calls() {
		if inv.Call == adminfake.CallForceQuorum {
			sawForceQuorum = true
		}
	}
	assert.True(t, sawForceQuorum)
}

func TestRepairClusterRefusesToActOnSplitBrain(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	cc := newTestController(t, admin, nil)

	err := cc.RepairCluster(context.Background(), diagnose.ClusterStatusReport{Status: v1alpha1.StatusSplitBrain})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SPLIT_BRAIN")
}

func TestRepairClusterWaitsOnUncertainStates(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	cc := newTestController(t, admin, nil)

	err := cc.RepairCluster(context.Background(), diagnose.ClusterStatusReport{Status: v1alpha1.StatusNoQuorumUncertain})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable members")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func adminMemberMetadataMissing() error {
	return errcode.New(errcode.MemberMetadataMissing, "metadata for instance not found")
}
