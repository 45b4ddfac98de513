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

package innodbcluster_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	innodbclusterctrl "github.com/mysql-operator/innodbcluster-operator/internal/controller/innodbcluster"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/controller"
	adminfake "github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mysqladmin/fake"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mutex"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/retry"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/status"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

// TestMain installs an in-memory ClusterStatus backend, mirroring
// pkg/cluster/controller's own test package: k8sobj.PatchClusterStatus
// delegates to whatever SetClusterStatusBackend installed.
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
		func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey, st *v1alpha1.ClusterStatus) error {
			mu.Lock()
			defer mu.Unlock()
			cp := *st
			statuses[key.String()] = &cp
			return nil
		},
	)
	os.Exit(m.Run())
}

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

func onlineStatus(selfID, role string, members ...string) sqlsession.GroupStatus {
	gs := sqlsession.GroupStatus{SelfMemberID: selfID, SelfRole: role, SelfState: "ONLINE", ViewID: "view-1", Version: "8.0.39"}
	for _, m := range members {
		gs.Members = append(gs.Members, sqlsession.MemberRow{MemberID: m, Role: "SECONDARY", State: "ONLINE"})
	}
	return gs
}

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	s := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(s))
	require.NoError(t, innodbclusterctrl.AddToScheme(s))
	return s
}

func newReconciler(t *testing.T, admin *adminfake.Client, c client.Client) *innodbclusterctrl.Reconciler {
	t.Helper()
	return &innodbclusterctrl.Reconciler{
		Client:        c,
		Log:           logr.Discard(),
		Scheme:        testScheme(t),
		Admin:         admin,
		K8s:           k8sobj.New(c, record.NewFakeRecorder(20)),
		Dial:          func(ctx context.Context, pod v1alpha1.MySQLPod) (sqlsession.Session, error) { return admin.Sessions[pod.Endpoint], nil },
		Status:        status.NewPublisher(nil, nil, nil, logr.Discard()),
		Mutex:         mutex.NewRegistry(),
		RetrySettings: retry.Settings{MaxAttempts: retry.DefaultMaxAttempts},
		RouterAccount: controller.Account{User: "mysqlrouter", Password: "secret"},
	}
}

func newPod(namespace, cluster, name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      name,
			Labels:    map[string]string{innodbclusterctrl.LabelCluster: cluster},
		},
	}
}

func TestReconcileCreatesClusterFromFirstPod(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	admin.Sessions["c1-0.c1:3306"] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-5"}

	cluster := &innodbclusterctrl.InnoDBCluster{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "c1"},
		Spec:       v1alpha1.InnoDBClusterSpec{Instances: 1},
	}
	pod := newPod("ns", "c1", "c1-0")

	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(cluster, pod).Build()
	r := newReconciler(t, admin, c)

	res, err := r.Reconcile(context.Background(), ctrl.Request{NamespacedName: client.ObjectKeyFromObject(cluster)})
	require.NoError(t, err)
	assert.True(t, admin.Cluster().Exists)
	assert.Equal(t, []string{"c1-0.c1:3306"}, admin.Cluster().Members)
	assert.Equal(t, innodbclusterctrl.ResyncInterval, res.RequeueAfter)
}

func TestReconcileJoinsSecondPodOnceClusterOnline(t *testing.T) {
	admin := adminfake.NewClient("ns_c1")
	admin.Sessions["c1-0.c1:3306"] = &scriptedSession{status: onlineStatus("uuid-0", "PRIMARY"), gtid: "a:1-10"}
	admin.Sessions["c1-1.c1:3306"] = &scriptedSession{status: onlineStatus("uuid-1", "SECONDARY", "uuid-0"), gtid: "a:1-10"}

	cluster := &innodbclusterctrl.InnoDBCluster{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "c1"},
		Spec:       v1alpha1.InnoDBClusterSpec{Instances: 2},
	}
	pod0 := newPod("ns", "c1", "c1-0")

	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(cluster, pod0).Build()
	r := newReconciler(t, admin, c)
	req := ctrl.Request{NamespacedName: client.ObjectKeyFromObject(cluster)}

	_, err := r.Reconcile(context.Background(), req)
	require.NoError(t, err)
	require.True(t, admin.Cluster().Exists)

	pod1 := newPod("ns", "c1", "c1-1")
	require.NoError(t, c.Create(context.Background(), pod1))

	_, err = r.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, admin.Cluster().Members, "c1-1.c1:3306")
}
