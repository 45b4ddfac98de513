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

package k8sobj_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

func testPod(ns, name string) v1alpha1.MySQLPod {
	return v1alpha1.MySQLPod{
		Cluster: v1alpha1.ClusterKey{Namespace: ns, Name: "c1"},
		Name:    name,
	}
}

func newFakeClient(objs ...*corev1.Pod) (*k8sobj.Client, client.Client) {
	builder := fake.NewClientBuilder()
	for _, o := range objs {
		builder = builder.WithObjects(o)
	}
	c := builder.Build()
	return k8sobj.New(c, record.NewFakeRecorder(10)), c
}

func TestAddMemberFinalizerIsIdempotent(t *testing.T) {
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "p0"}}
	k, c := newFakeClient(pod)
	mp := testPod("ns", "p0")

	require.NoError(t, k.AddMemberFinalizer(context.Background(), mp))
	require.NoError(t, k.AddMemberFinalizer(context.Background(), mp))

	var live corev1.Pod
	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: "ns", Name: "p0"}, &live))
	require.Equal(t, []string{k8sobj.MemberFinalizer}, live.Finalizers)
}

func TestRemoveMemberFinalizerClearsIt(t *testing.T) {
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "p0", Finalizers: []string{k8sobj.MemberFinalizer}},
	}
	k, c := newFakeClient(pod)
	mp := testPod("ns", "p0")

	require.NoError(t, k.RemoveMemberFinalizer(context.Background(), mp))

	var live corev1.Pod
	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: "ns", Name: "p0"}, &live))
	require.False(t, k8sobj.HasMemberFinalizer(&live))
}

func TestRemoveMemberFinalizerOnMissingPodIsNotAnError(t *testing.T) {
	k, _ := newFakeClient()
	mp := testPod("ns", "ghost")

	require.NoError(t, k.RemoveMemberFinalizer(context.Background(), mp))
}

func TestPatchMembershipSetsAnnotationsAndReadinessGate(t *testing.T) {
	pod := &corev1.Pod{ObjectMeta: metav1.ObjectMeta{Namespace: "ns", Name: "p0"}}
	k, c := newFakeClient(pod)
	mp := testPod("ns", "p0")

	info := v1alpha1.MembershipInfo{
		MemberID:           "uuid-0",
		Role:               "PRIMARY",
		Status:             "ONLINE",
		ViewID:             "view-1",
		Version:            "8.0.39",
		LastTransitionTime: time.Now(),
	}
	require.NoError(t, k.PatchMembership(context.Background(), mp, info, true))

	var live corev1.Pod
	require.NoError(t, c.Get(context.Background(), client.ObjectKey{Namespace: "ns", Name: "p0"}, &live))
	got, ok := k8sobj.ReadMembership(&live)
	require.True(t, ok)
	require.Equal(t, "uuid-0", got.MemberID)
	require.Equal(t, "ONLINE", got.Status)
}
