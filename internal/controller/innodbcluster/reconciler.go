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

package innodbcluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/internal/validation"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/controller"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mutex"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mysqladmin"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/retry"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

// ResyncInterval is the requeue delay this Reconciler asks for after a
// reconcile that found no pod-level delta to act on. The periodic resync
// just re-probes the cluster and, if unhealthy, calls RepairCluster.
const ResyncInterval = 30 * time.Second

// podObservation is the sliver of pod state the Reconciler remembers between
// calls in order to classify the next call's delta into a pod lifecycle
// event, instead of re-deriving it from a single live snapshot.
type podObservation struct {
	restartCount int32
	deleting     bool
}

// Reconciler adapts Kubernetes watch events on InnoDBCluster/Pod objects
// into calls against pkg/cluster/controller.ClusterController, classifying
// each reconcile into pod created/restarted/deleted or a plain resync.
type Reconciler struct {
	client.Client
	Log    logr.Logger
	Scheme *runtime.Scheme

	Admin  mysqladmin.Client
	K8s    *k8sobj.Client
	Router k8sobj.RouterSizer
	Dial   diagnose.PodDialer
	Status controller.StatusPublisher

	Mutex         *mutex.Registry
	RetrySettings retry.Settings

	RouterAccount controller.Account
	BackupAccount controller.Account

	// IPAllowlistExtra is appended to every pod's ipAllowlist option
	// (internal/config.Config.IPAllowlistExtra, wired at process start).
	IPAllowlistExtra string

	// ProbeTimeout bounds each per-pod probe during diagnosis
	// (internal/config.Config.ProbeTimeout); zero means the diagnose
	// package default.
	ProbeTimeout time.Duration

	mu          sync.Mutex
	seen        map[string]podObservation
	createTimes map[string]*time.Time
}

// cachedCreateTime returns this process's own record of when key's cluster
// was created, if any. Preferred over re-reading cluster.Status.CreateTime
// from the live object on every reconcile: PatchClusterStatus's backend
// (pkg/k8sobj.SetClusterStatusBackend) is a seam this repo leaves to the
// manager wiring, and nothing here should assume it round-trips back onto
// the same object this Reconciler just listed.
func (r *Reconciler) cachedCreateTime(key v1alpha1.ClusterKey) *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createTimes[key.String()]
}

func (r *Reconciler) rememberCreateTime(key v1alpha1.ClusterKey, t *time.Time) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createTimes == nil {
		r.createTimes = map[string]*time.Time{}
	}
	r.createTimes[key.String()] = t
}

// Reconcile implements controller-runtime's reconcile.Reconciler.
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	log := r.Log.WithValues("innodbcluster", req.NamespacedName)

	var cluster InnoDBCluster
	if err := r.Get(ctx, req.NamespacedName, &cluster); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("get InnoDBCluster %s: %w", req.NamespacedName, err)
	}
	key := cluster.Key()

	if !cluster.DeletionTimestamp.IsZero() {
		// validation never runs against a cluster being deleted: a spec that
		// became invalid after the fact must never block teardown.
	} else if err := validation.ValidateClusterSpec(cluster.Spec); err != nil {
		log.Error(err, "invalid InnoDBCluster spec")
		return ctrl.Result{}, nil
	}

	guard, err := mutex.Acquire(r.Mutex, key, req.String())
	if err != nil {
		return r.translate(log, err)
	}
	defer guard.Release()

	var podList corev1.PodList
	if err := r.List(ctx, &podList, client.InNamespace(req.Namespace), client.MatchingLabels{LabelCluster: req.Name}); err != nil {
		return ctrl.Result{}, fmt.Errorf("list pods for %s: %w", key, err)
	}

	pods := make([]v1alpha1.MySQLPod, 0, len(podList.Items))
	events := make([]podEvent, 0, len(podList.Items))
	for i := range podList.Items {
		pod := podToMySQLPod(key, &podList.Items[i])
		pods = append(pods, pod)
		if kind, ok := r.classify(&podList.Items[i]); ok {
			events = append(events, podEvent{kind: kind, index: len(pods) - 1})
		}
	}

	createTime := cluster.Status.CreateTime
	if cached := r.cachedCreateTime(key); cached != nil {
		createTime = cached
	}

	retryLoop := retry.NewLoop(key.GRClusterName(), r.RetrySettings)
	cc := controller.New(r.Admin, r.K8s, r.Router, r.Dial, retryLoop, r.Status, log, &cluster, controller.ClusterState{
		Key:              key,
		Spec:             cluster.Spec,
		Deleting:         !cluster.DeletionTimestamp.IsZero(),
		CreateTime:       createTime,
		Pods:             pods,
		RouterAccount:    r.RouterAccount,
		BackupAccount:    r.BackupAccount,
		IPAllowlistExtra: r.IPAllowlistExtra,
		ProbeTimeout:     r.ProbeTimeout,
	})

	if len(events) == 0 {
		return r.resync(ctx, log, cc)
	}

	for _, ev := range events {
		pod := &cc.Cluster.Pods[ev.index]
		var err error
		switch ev.kind {
		case eventPodCreated:
			err = cc.OnPodCreated(ctx, pod)
		case eventPodRestarted:
			err = cc.OnPodRestarted(ctx, pod)
		case eventPodDeleted:
			err = cc.OnPodDeleted(ctx, pod)
		}
		if err != nil {
			return r.translate(log, err)
		}
	}
	r.rememberCreateTime(key, cc.Cluster.CreateTime)
	return ctrl.Result{RequeueAfter: ResyncInterval}, nil
}

// resync re-diagnoses the cluster and repairs it if unhealthy, the path
// taken when no individual pod's state changed since the last reconcile.
func (r *Reconciler) resync(ctx context.Context, log logr.Logger, cc *controller.ClusterController) (ctrl.Result, error) {
	handle := &diagnose.ClusterHandle{
		Key:          cc.Cluster.Key,
		Spec:         cc.Cluster.Spec,
		CreateTime:   cc.Cluster.CreateTime,
		Deleting:     cc.Cluster.Deleting,
		Pods:         cc.Cluster.Pods,
		Dial:         cc.Dial,
		ProbeTimeout: cc.Cluster.ProbeTimeout,
	}
	diag, err := diagnose.DiagnoseCluster(ctx, handle)
	if err != nil {
		return r.translate(log, err)
	}
	if !cc.Cluster.Deleting && cc.Status != nil {
		if perr := cc.Status.Publish(ctx, cc.Cluster.Key, diag); perr != nil {
			log.Error(perr, "failed to publish cluster status during resync")
		}
	}
	if err := cc.RepairCluster(ctx, diag); err != nil {
		return r.translate(log, err)
	}
	return ctrl.Result{RequeueAfter: ResyncInterval}, nil
}

// translate maps a clustererr result into a ctrl.Result: Transient becomes
// a scheduled requeue, Permanent a logged stop, and anything else an
// unclassified error the workqueue retries with its own exponential
// backoff.
func (r *Reconciler) translate(log logr.Logger, err error) (ctrl.Result, error) {
	if t, ok := clustererr.AsTransient(err); ok {
		log.V(1).Info("transient error, requeuing", "delay", t.Delay, "reason", t.Error())
		return ctrl.Result{RequeueAfter: t.Delay}, nil
	}
	if p, ok := clustererr.AsPermanent(err); ok {
		log.Error(p, "permanent error, human intervention required")
		return ctrl.Result{}, nil
	}
	return ctrl.Result{}, err
}

type podEventKind int

const (
	eventPodCreated podEventKind = iota
	eventPodRestarted
	eventPodDeleted
)

type podEvent struct {
	kind  podEventKind
	index int
}

// classify compares pod against this Reconciler's cached observation of it,
// returning the lifecycle event triggered (if any) and recording the new
// observation. mu is held for the lookup and update of this one pod's
// entry, so concurrent reconciles (MaxConcurrentReconciles > 1) never tear
// a single observation; it is not held across the whole pod set.
func (r *Reconciler) classify(pod *corev1.Pod) (podEventKind, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = map[string]podObservation{}
	}

	deleting := !pod.DeletionTimestamp.IsZero()
	restarts := maxRestartCount(pod)
	prev, had := r.seen[pod.Name]
	r.seen[pod.Name] = podObservation{restartCount: restarts, deleting: deleting}

	switch {
	case !had && !deleting:
		return eventPodCreated, true
	case deleting && !prev.deleting:
		return eventPodDeleted, true
	case deleting:
		// still waiting on the finalizer to clear; keep retrying removal.
		return eventPodDeleted, true
	case had && restarts > prev.restartCount:
		return eventPodRestarted, true
	default:
		return 0, false
	}
}

func maxRestartCount(pod *corev1.Pod) int32 {
	var highest int32
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.RestartCount > highest {
			highest = cs.RestartCount
		}
	}
	return highest
}

// podToMySQLPod builds the value type the reconciliation core operates on
// from a live corev1.Pod, the inverse of what pkg/k8sobj patches back onto
// it. The pod's StatefulSet-ordinal suffix (the "-N" after the last dash)
// is its cluster index; its endpoint is "<pod-name>.<cluster-name>:3306"
// against the cluster's governing headless Service, named identically to
// the cluster itself.
func podToMySQLPod(key v1alpha1.ClusterKey, pod *corev1.Pod) v1alpha1.MySQLPod {
	index := 0
	if i := strings.LastIndex(pod.Name, "-"); i >= 0 {
		if n, err := strconv.Atoi(pod.Name[i+1:]); err == nil {
			index = n
		}
	}
	endpoint := fmt.Sprintf("%s.%s:3306", pod.Name, key.Name)

	out := v1alpha1.MySQLPod{
		Cluster:            key,
		Index:              index,
		Name:               pod.Name,
		Endpoint:           endpoint,
		EndpointCO:         v1alpha1.EndpointConnectOptions{Endpoint: endpoint},
		PodIPAddress:       pod.Status.PodIP,
		Deleting:           !pod.DeletionTimestamp.IsZero(),
		HasMemberFinalizer: k8sobj.HasMemberFinalizer(pod),
		ReadinessGate:      k8sobj.IsReadinessGateTrue(pod),
	}
	if m, ok := k8sobj.ReadMembership(pod); ok {
		out.Membership = m
	}
	return out
}

// SetupWithManager registers this Reconciler against mgr, watching
// InnoDBCluster directly and owned Pods so a pod-only change (restart,
// readiness flip, deletion) triggers its owning cluster's reconcile.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&InnoDBCluster{}).
		Owns(&corev1.Pod{}).
		Complete(r)
}
