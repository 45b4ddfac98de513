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

// Package k8sobj is the reconciliation core's only route to the
// Kubernetes API: patching pod
// annotations/finalizers/readiness gate, patching the cluster status
// subresource, and posting events. The pkg/cluster packages work against
// plain v1alpha1 value types and never import k8s.io/api; the adapter in
// internal/controller/innodbcluster (which lists pods) and the process
// wiring in cmd/mysql-operator-controller also use the API directly.
package k8sobj

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/retry"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
)

// MemberFinalizer is the finalizer name added to a pod while it is (or may
// still be) a live GR member. See RemoveMemberFinalizer for when it is
// removed.
const MemberFinalizer = "innodbcluster.mysql-operator.github.com/member"

// ReadinessGateCondition is the pod condition type this repo flips to True
// once a probe observes GR status ONLINE, so a Kubernetes Service selecting
// on pod readiness only routes to members actually serving reads/writes.
const ReadinessGateCondition corev1.PodConditionType = "innodbcluster.mysql-operator.github.com/gr-ready"

const (
	annoMemberID    = "innodbcluster.mysql-operator.github.com/member-id"
	annoRole        = "innodbcluster.mysql-operator.github.com/role"
	annoStatus      = "innodbcluster.mysql-operator.github.com/status"
	annoViewID      = "innodbcluster.mysql-operator.github.com/view-id"
	annoVersion     = "innodbcluster.mysql-operator.github.com/version"
	annoTransitionT = "innodbcluster.mysql-operator.github.com/last-transition-time"
)

// Client wraps a controller-runtime client.Client plus an EventRecorder,
// bundled together because every mutator below needs both: the patch and
// the human-readable event describing why it happened.
type Client struct {
	c        client.Client
	recorder record.EventRecorder
}

// New builds a Client over an existing controller-runtime client and
// event recorder, as wired by cmd/mysql-operator-controller's manager setup.
func New(c client.Client, recorder record.EventRecorder) *Client {
	return &Client{c: c, recorder: recorder}
}

func podRef(pod v1alpha1.MySQLPod) types.NamespacedName {
	return types.NamespacedName{Namespace: pod.Cluster.Namespace, Name: pod.Name}
}

// patchPod fetches the live pod, applies mutate, and retries on a
// conflicting concurrent update - the standard optimistic-concurrency loop
// for any single-object patch against the Kubernetes API.
func (k *Client) patchPod(ctx context.Context, pod v1alpha1.MySQLPod, mutate func(*corev1.Pod) bool) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var live corev1.Pod
		if err := k.c.Get(ctx, podRef(pod), &live); err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("get pod %s: %w", podRef(pod), err)
		}
		if !mutate(&live) {
			return nil
		}
		if err := k.c.Update(ctx, &live); err != nil {
			return fmt.Errorf("update pod %s: %w", podRef(pod), err)
		}
		return nil
	})
}

// AddMemberFinalizer adds MemberFinalizer to pod, idempotently. Must be
// called before the admin-client call that actually makes the pod a GR
// member, so a crash in between leaves the finalizer set.
func (k *Client) AddMemberFinalizer(ctx context.Context, pod v1alpha1.MySQLPod) error {
	return k.patchPod(ctx, pod, func(p *corev1.Pod) bool {
		for _, f := range p.Finalizers {
			if f == MemberFinalizer {
				return false
			}
		}
		p.Finalizers = append(p.Finalizers, MemberFinalizer)
		return true
	})
}

// RemoveMemberFinalizer removes MemberFinalizer from pod, idempotently.
// pkg/cluster/controller calls it at the end of RemoveInstance (including
// when GR removal was skipped or its error swallowed for a cluster being
// deleted), after a failed CreateCluster, and from DestroyCluster whether
// or not stopping GR succeeded.
func (k *Client) RemoveMemberFinalizer(ctx context.Context, pod v1alpha1.MySQLPod) error {
	return k.patchPod(ctx, pod, func(p *corev1.Pod) bool {
		out := p.Finalizers[:0]
		removed := false
		for _, f := range p.Finalizers {
			if f == MemberFinalizer {
				removed = true
				continue
			}
			out = append(out, f)
		}
		p.Finalizers = out
		return removed
	})
}

// PatchMembership writes the pod's MembershipInfo annotations and flips the
// readiness gate condition to match ready, in one pod update. Its callers
// (pkg/cluster/controller's probeMemberStatus and OnGroupViewChange) call it
// after every probe or view change, whether or not either value changed.
func (k *Client) PatchMembership(ctx context.Context, pod v1alpha1.MySQLPod, info v1alpha1.MembershipInfo, ready bool) error {
	return k.patchPod(ctx, pod, func(p *corev1.Pod) bool {
		if p.Annotations == nil {
			p.Annotations = map[string]string{}
		}
		p.Annotations[annoMemberID] = info.MemberID
		p.Annotations[annoRole] = info.Role
		p.Annotations[annoStatus] = info.Status
		p.Annotations[annoViewID] = info.ViewID
		p.Annotations[annoVersion] = info.Version
		p.Annotations[annoTransitionT] = info.LastTransitionTime.UTC().Format("2006-01-02T15:04:05Z")

		setPodCondition(p, ReadinessGateCondition, ready)
		return true
	})
}

func setPodCondition(p *corev1.Pod, condType corev1.PodConditionType, ready bool) {
	status := corev1.ConditionFalse
	if ready {
		status = corev1.ConditionTrue
	}
	for i := range p.Status.Conditions {
		if p.Status.Conditions[i].Type == condType {
			p.Status.Conditions[i].Status = status
			return
		}
	}
	p.Status.Conditions = append(p.Status.Conditions, corev1.PodCondition{Type: condType, Status: status})
}

// ReadMembership reconstructs the MembershipInfo this package last wrote to
// pod's annotations, the inverse of PatchMembership. Returns (nil, false) if
// none of the membership annotations are present yet (a pod that has never
// been probed).
func ReadMembership(pod *corev1.Pod) (*v1alpha1.MembershipInfo, bool) {
	if pod.Annotations[annoMemberID] == "" && pod.Annotations[annoStatus] == "" {
		return nil, false
	}
	t, _ := time.Parse("2006-01-02T15:04:05Z", pod.Annotations[annoTransitionT])
	return &v1alpha1.MembershipInfo{
		MemberID:           pod.Annotations[annoMemberID],
		Role:               pod.Annotations[annoRole],
		Status:             pod.Annotations[annoStatus],
		ViewID:             pod.Annotations[annoViewID],
		Version:            pod.Annotations[annoVersion],
		LastTransitionTime: t,
	}, true
}

// HasMemberFinalizer reports whether pod currently carries MemberFinalizer.
func HasMemberFinalizer(pod *corev1.Pod) bool {
	for _, f := range pod.Finalizers {
		if f == MemberFinalizer {
			return true
		}
	}
	return false
}

// IsReadinessGateTrue reports whether pod's GR readiness gate condition is
// currently True.
func IsReadinessGateTrue(pod *corev1.Pod) bool {
	for _, c := range pod.Status.Conditions {
		if c.Type == ReadinessGateCondition {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// PatchClusterStatus updates the InnoDBCluster's status subresource. The
// resource's manifest construction lives outside this repo; the caller
// supplies the cluster key and an apply function that edits the current
// status in place, and this function is solely responsible for reading the
// current status, writing the edited one back, and retrying on conflict.
func (k *Client) PatchClusterStatus(ctx context.Context, key v1alpha1.ClusterKey, apply func(status *v1alpha1.ClusterStatus)) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		status, err := k.getClusterStatus(ctx, key)
		if err != nil {
			return err
		}
		apply(status)
		return k.setClusterStatus(ctx, key, status)
	})
}

// getClusterStatus and setClusterStatus are overridable seams (instead of a
// hard dependency on a generated unstructured/typed CRD client) since this
// repo's CRD wiring lives with the deployment; production wiring in
// cmd/mysql-operator-controller supplies an implementation over the
// hand-written InnoDBCluster object (Get plus Status().Update), tests supply
// an in-memory one.
var (
	getClusterStatusImpl func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey) (*v1alpha1.ClusterStatus, error)
	setClusterStatusImpl func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey, status *v1alpha1.ClusterStatus) error
)

// SetClusterStatusBackend installs the concrete CRD status accessor this
// Client delegates to. Must be called once during manager setup before any
// PatchClusterStatus call.
func SetClusterStatusBackend(
	get func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey) (*v1alpha1.ClusterStatus, error),
	set func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey, status *v1alpha1.ClusterStatus) error,
) {
	getClusterStatusImpl = get
	setClusterStatusImpl = set
}

func (k *Client) getClusterStatus(ctx context.Context, key v1alpha1.ClusterKey) (*v1alpha1.ClusterStatus, error) {
	if getClusterStatusImpl == nil {
		return nil, fmt.Errorf("k8sobj: no cluster status backend installed")
	}
	return getClusterStatusImpl(ctx, k.c, key)
}

func (k *Client) setClusterStatus(ctx context.Context, key v1alpha1.ClusterKey, status *v1alpha1.ClusterStatus) error {
	if setClusterStatusImpl == nil {
		return fmt.Errorf("k8sobj: no cluster status backend installed")
	}
	return setClusterStatusImpl(ctx, k.c, key, status)
}

// EventReason names the stable, machine-greppable reason string attached to
// every posted Kubernetes event (one fixed CamelCase reason per call site,
// a free-text message for humans).
type EventReason string

const (
	ReasonDiagnosed                 EventReason = "ClusterDiagnosed"
	ReasonMutationFailed            EventReason = "ClusterMutationFailed"
	ReasonSplitBrain                EventReason = "ClusterSplitBrain"
	ReasonHumanInterventionRequired EventReason = "HumanInterventionRequired"
	ReasonRepairing                 EventReason = "ClusterRepairing"
)

// Eventf posts a Kubernetes event against the cluster resource. obj must be
// the live runtime.Object for that resource (the controller-runtime adapter
// already has it in hand on every call path); this package never looks it
// up on its own to avoid a second API round trip on the hot path.
func (k *Client) Eventf(obj client.Object, eventType string, reason EventReason, messageFmt string, args ...interface{}) {
	k.recorder.Eventf(obj, eventType, string(reason), messageFmt, args...)
}

// RouterSizer sizes the MySQL Router deployment. The reconciler only ever
// calls SetSize against an already-existing Deployment, never builds the
// manifest itself.
type RouterSizer interface {
	SetSize(ctx context.Context, cluster v1alpha1.ClusterKey, instances int32) error
}

// RouterDeploymentSuffix names the owned router Deployment relative to its
// cluster, e.g. cluster "c1" scales Deployment "c1-router".
const RouterDeploymentSuffix = "-router"

// DeploymentRouterSizer implements RouterSizer by patching the replica count
// of an existing appsv1.Deployment. A missing Deployment is treated as a
// no-op: until whatever external process creates it has run, sizing is
// simply deferred.
type DeploymentRouterSizer struct {
	c client.Client
}

// NewDeploymentRouterSizer builds a DeploymentRouterSizer over c.
func NewDeploymentRouterSizer(c client.Client) *DeploymentRouterSizer {
	return &DeploymentRouterSizer{c: c}
}

// SetSize patches the router Deployment's replica count to instances.
func (d *DeploymentRouterSizer) SetSize(ctx context.Context, cluster v1alpha1.ClusterKey, instances int32) error {
	return retry.RetryOnConflict(retry.DefaultRetry, func() error {
		var dep appsv1.Deployment
		name := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name + RouterDeploymentSuffix}
		if err := d.c.Get(ctx, name, &dep); err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			return fmt.Errorf("get router deployment %s: %w", name, err)
		}
		if dep.Spec.Replicas != nil && *dep.Spec.Replicas == instances {
			return nil
		}
		dep.Spec.Replicas = &instances
		if err := d.c.Update(ctx, &dep); err != nil {
			return fmt.Errorf("update router deployment %s: %w", name, err)
		}
		return nil
	})
}
