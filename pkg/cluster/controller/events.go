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

package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/tracing"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
)

// GroupMemberView is one row of a Group Replication view-change
// notification (a GCS membership event), as the controller-runtime adapter
// decodes it off whatever channel surfaces those events.
type GroupMemberView struct {
	MemberID string
	Role     string
	Status   string
	ViewID   string
	Endpoint string
	Version  string
}

// OnPodCreated handles a newly created pod: the very first pod (index 0)
// creates the cluster, the rest wait for it or join once the cluster is up.
func (cc *ClusterController) OnPodCreated(ctx context.Context, pod *v1alpha1.MySQLPod) error {
	ctx, span := tracing.StartEvent(ctx, "on_pod_created", cc.Cluster.Key.Namespace, cc.Cluster.Key.Name)
	defer span.End()

	diag, err := cc.probeStatus(ctx)
	if err != nil {
		return err
	}
	cc.Logger.V(1).Info("on_pod_created", "pod", pod.Name, "primary", primaryName(diag.Primary), "cluster_state", diag.Status)

	switch {
	case diag.Status == v1alpha1.StatusInitializing:
		if pod.Index != 0 {
			return clustererr.NewTransient(15*time.Second, "cluster is not yet ready")
		}
		if cc.Cluster.CreateTime != nil {
			return clustererr.NewPermanent("internal inconsistency: cluster marked as initialized, but create requested again")
		}
		if err := cc.Retry.Call(ctx, func(ctx context.Context) error { return cc.CreateCluster(ctx, pod) }); err != nil {
			return err
		}
		now := time.Now().UTC()
		cc.Cluster.CreateTime = &now
		return cc.K8s.PatchClusterStatus(ctx, cc.Cluster.Key, func(status *v1alpha1.ClusterStatus) {
			status.CreateTime = &now
		})

	case diag.Status.IsOnlineVariant():
		return cc.Retry.Call(ctx, func(ctx context.Context) error { return cc.ReconcilePod(ctx, diag.Primary, pod) })

	default:
		if err := cc.RepairCluster(ctx, diag); err != nil {
			return err
		}
		return clustererr.NewTransient(3*time.Second, fmt.Sprintf("cluster repair from state %s attempted", diag.Status))
	}
}

// OnPodRestarted handles a pod whose container restarted (typically from an
// ABORT_SERVER eviction): repair the cluster first if it isn't healthy,
// then always reconcile the restarted pod itself back into membership.
func (cc *ClusterController) OnPodRestarted(ctx context.Context, pod *v1alpha1.MySQLPod) error {
	ctx, span := tracing.StartEvent(ctx, "on_pod_restarted", cc.Cluster.Key.Namespace, cc.Cluster.Key.Name)
	defer span.End()

	diag, err := cc.probeStatus(ctx)
	if err != nil {
		return err
	}
	cc.Logger.V(1).Info("on_pod_restarted", "pod", pod.Name, "cluster_state", diag.Status)

	if diag.Status != v1alpha1.StatusOnline && diag.Status != v1alpha1.StatusOnlinePartial {
		if err := cc.RepairCluster(ctx, diag); err != nil {
			return err
		}
	}
	return cc.Retry.Call(ctx, func(ctx context.Context) error { return cc.ReconcilePod(ctx, diag.Primary, pod) })
}

// OnPodDeleted handles a pod being torn down: the last pod of a cluster
// being deleted stops GR and returns directly; otherwise the pod is cleanly
// removed from membership if the cluster is healthy enough to do that
// safely, or the cluster is repaired first.
func (cc *ClusterController) OnPodDeleted(ctx context.Context, pod *v1alpha1.MySQLPod) error {
	ctx, span := tracing.StartEvent(ctx, "on_pod_deleted", cc.Cluster.Key.Namespace, cc.Cluster.Key.Name)
	defer span.End()

	diag, err := cc.probeStatus(ctx)
	if err != nil {
		return err
	}
	cc.Logger.V(1).Info("on_pod_deleted", "pod", pod.Name, "cluster_state", diag.Status)

	if cc.Cluster.Deleting && pod.Index == 0 {
		if err := cc.DestroyCluster(ctx, pod); err != nil {
			return err
		}
		_, err := cc.probeStatus(ctx)
		return err
	}

	online := diag.Status.IsOnlineVariant() || diag.Status == v1alpha1.StatusFinalizing
	if pod.Deleting || online {
		if err := cc.Retry.Call(ctx, func(ctx context.Context) error { return cc.RemoveInstance(ctx, pod, false) }); err != nil {
			return err
		}
	} else {
		if err := cc.RepairCluster(ctx, diag); err != nil {
			return err
		}
		return clustererr.NewTransient(3*time.Second, fmt.Sprintf("cluster repair from state %s attempted", diag.Status))
	}

	_, err = cc.probeStatus(ctx)
	return err
}

// OnGroupViewChange folds a GCS view-change notification straight into the
// matching pods' membership info without a full re-probe. This is the fast,
// event-driven path; the slower SQL-probe path (ReconcilePod/probeStatus)
// remains the source of truth it periodically reconciles against.
func (cc *ClusterController) OnGroupViewChange(ctx context.Context, members []GroupMemberView) error {
	ctx, span := tracing.StartEvent(ctx, "on_group_view_change", cc.Cluster.Key.Namespace, cc.Cluster.Key.Name)
	defer span.End()

	for i := range cc.Cluster.Pods {
		pod := &cc.Cluster.Pods[i]
		podMemberID := ""
		if pod.Membership != nil {
			podMemberID = pod.Membership.MemberID
		}

		for _, m := range members {
			if !((podMemberID != "" && m.MemberID == podMemberID) || m.Endpoint == pod.Endpoint) {
				continue
			}
			if pod.Membership == nil {
				pod.Membership = &v1alpha1.MembershipInfo{}
			}
			if pod.Membership.Role != m.Role || pod.Membership.Status != m.Status || pod.Membership.ViewID != m.ViewID {
				pod.Membership.LastTransitionTime = time.Now().UTC()
			}
			pod.Membership.MemberID = m.MemberID
			pod.Membership.Role = m.Role
			pod.Membership.Status = m.Status
			pod.Membership.ViewID = m.ViewID
			pod.Membership.Version = m.Version
			pod.ReadinessGate = m.Status == "ONLINE"

			if cc.K8s != nil {
				if err := cc.K8s.PatchMembership(ctx, *pod, *pod.Membership, pod.ReadinessGate); err != nil {
					cc.Logger.Error(err, "failed to patch pod membership on view change", "pod", pod.Name)
				}
			}
			break
		}
	}
	return nil
}

// OnRouterTLSChanged is a logged no-op rather than a silently dropped
// event. TODO: trigger a rolling router pod restart once the router
// deployment helper grows a restart primitive.
func (cc *ClusterController) OnRouterTLSChanged(ctx context.Context) error {
	cc.Logger.V(1).Info("router TLS change observed, no-op")
	return nil
}

// OnUpgrade handles a detected MySQL server version/image change. In-place
// upgrade orchestration is not built; the event is logged so a version
// drift is at least visible to the operator.
func (cc *ClusterController) OnUpgrade(ctx context.Context, version string) error {
	cc.Logger.Info("server version/image change observed, no-op", "version", version)
	return nil
}

// OnServerVersionChange funnels into OnUpgrade; version and image changes
// share one dispatch.
func (cc *ClusterController) OnServerVersionChange(ctx context.Context, version string) error {
	return cc.OnUpgrade(ctx, version)
}

// OnServerImageChange funnels into OnUpgrade; version and image changes
// share one dispatch.
func (cc *ClusterController) OnServerImageChange(ctx context.Context, version string) error {
	return cc.OnUpgrade(ctx, version)
}
