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

// Package controller holds the domain logic driving one InnoDBCluster
// through creation, scaling, pod join/rejoin/removal and outage recovery.
// Admin actions go through pkg/cluster/mysqladmin; retryable and fatal
// failures are reported as pkg/clustererr values so the calling reconciler
// can requeue or stop.
package controller

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/errcode"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/gtid"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mysqladmin"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/probe"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/retry"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/tracing"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

// exitStateActionAbort aborts the server when it's expelled from the
// group, turning every eviction into a visible container restart that
// reaches OnPodRestarted.
const exitStateActionAbort = "ABORT_SERVER"

// Account is a username/password pair for an account this repo provisions
// through the admin client (router) or logs as provisioned externally
// by the backup subsystem.
type Account struct {
	User     string
	Password string
}

// StatusPublisher is implemented by pkg/cluster/status.Publisher. Declared
// here, consumer-side, so this package never imports pkg/cluster/status
// (which in turn depends on this package's diagnosis types, not the other
// way around).
type StatusPublisher interface {
	Publish(ctx context.Context, key v1alpha1.ClusterKey, report diagnose.ClusterStatusReport) error
}

// ClusterState is everything about one InnoDBCluster the controller needs
// beyond what it reads live from MySQL.
type ClusterState struct {
	Key              v1alpha1.ClusterKey
	Spec             v1alpha1.InnoDBClusterSpec
	Deleting         bool
	CreateTime       *time.Time
	Pods             []v1alpha1.MySQLPod
	RouterAccount    Account
	BackupAccount    Account
	RouterReplicas   int32
	IPAllowlistExtra string
	// ProbeTimeout is passed through to diagnosis; zero means the
	// diagnose package default.
	ProbeTimeout time.Duration
}

// ClusterController drives one InnoDBCluster toward its declared state.
// One instance is built per reconcile dispatch (the
// internal/controller/innodbcluster adapter constructs a fresh one for
// every Reconcile call and dispatches all of that call's pod events through
// it) and is not safe to share across goroutines: dba/dbaCluster
// are call-scoped connection state, not shared singletons.
type ClusterController struct {
	Admin         mysqladmin.Client
	K8s           *k8sobj.Client
	Router        k8sobj.RouterSizer
	Dial          diagnose.PodDialer
	Retry         *retry.Loop
	Status        StatusPublisher
	Logger        logr.Logger
	ClusterObject client.Object

	Cluster ClusterState

	dba        mysqladmin.DbaHandle
	dbaCluster mysqladmin.ClusterHandle
}

// New builds a ClusterController for one reconcile dispatch.
func New(admin mysqladmin.Client, k8s *k8sobj.Client, router k8sobj.RouterSizer, dial diagnose.PodDialer, retryLoop *retry.Loop, status StatusPublisher, logger logr.Logger, clusterObj client.Object, state ClusterState) *ClusterController {
	return &ClusterController{
		Admin:         admin,
		K8s:           k8s,
		Router:        router,
		Dial:          dial,
		Retry:         retryLoop,
		Status:        status,
		Logger:        logger,
		ClusterObject: clusterObj,
		Cluster:       state,
	}
}

type connectedPeer struct {
	Pod     v1alpha1.MySQLPod
	Cluster mysqladmin.ClusterHandle
}

func (cc *ClusterController) createAllowList(pod v1alpha1.MySQLPod) string {
	allowlist := pod.PodIPAddress + "/8," + cc.Cluster.IPAllowlistExtra
	cc.Logger.V(1).Info("allow_list", "pod", pod.Name, "ip_allowlist", allowlist)
	return allowlist
}

// selectPodWithMostGTIDs picks the pod index whose GTID set has the most
// transactions, used as the reboot seed. Ties favor the highest pod index.
func selectPodWithMostGTIDs(gtids map[int]*string) int {
	indexes := make([]int, 0, len(gtids))
	for idx := range gtids {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	best := -1
	var bestCount int64 = -1
	for _, idx := range indexes {
		count := gtid.Parse(gtids[idx]).Count()
		if count >= bestCount {
			bestCount = count
			best = idx
		}
	}
	return best
}

func primaryName(pod *v1alpha1.MySQLPod) string {
	if pod == nil {
		return ""
	}
	return pod.Name
}

func (cc *ClusterController) probeStatus(ctx context.Context) (diagnose.ClusterStatusReport, error) {
	handle := &diagnose.ClusterHandle{
		Key:          cc.Cluster.Key,
		Spec:         cc.Cluster.Spec,
		CreateTime:   cc.Cluster.CreateTime,
		Deleting:     cc.Cluster.Deleting,
		Pods:         cc.Cluster.Pods,
		Dial:         cc.Dial,
		ProbeTimeout: cc.Cluster.ProbeTimeout,
	}
	report, err := diagnose.DiagnoseCluster(ctx, handle)
	if err != nil {
		return report, err
	}
	if !cc.Cluster.Deleting && cc.Status != nil {
		if perr := cc.Status.Publish(ctx, cc.Cluster.Key, report); perr != nil {
			cc.Logger.Error(perr, "failed to publish cluster status")
		}
	}
	cc.Logger.Info("cluster probe", "status", report.Status, "online", len(report.OnlineMembers))
	return report, nil
}

func (cc *ClusterController) logMySQLInfo(ctx context.Context, pod v1alpha1.MySQLPod, session sqlsession.Session) {
	identity, err := session.Identity(ctx)
	if err != nil {
		cc.Logger.Error(err, "failed to read server identity", "pod", pod.Name)
		return
	}
	fields := []interface{}{"pod", pod.Name, "server_id", identity.ServerID, "server_uuid", identity.ServerUUID, "report_host", identity.ReportHost}
	if executed, purged, err := session.GTIDExecuted(ctx); err == nil {
		fields = append(fields, "gtid_executed", derefOrEmpty(executed), "gtid_purged", derefOrEmpty(purged))
	}
	cc.Logger.Info("mysql instance info", fields...)
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// probeMemberStatus re-probes pod and persists the result. joined marks
// the pod as holding the membership finalizer in addition to the ordinary
// annotation/readiness patch ApplyToPod already computed.
func (cc *ClusterController) probeMemberStatus(ctx context.Context, pod *v1alpha1.MySQLPod, session sqlsession.Session, joined bool) (probe.Result, error) {
	result, err := probe.Probe(ctx, session)
	if err != nil {
		return probe.Result{}, err
	}
	cc.Logger.V(1).Info("instance probe",
		"pod", pod.Name, "role", result.Role, "status", result.Status,
		"view_id", result.ViewID, "version", result.Version,
		"members", result.MemberCount, "reachable_members", result.ReachableMemberCount)

	probe.ApplyToPod(pod, result)
	if joined {
		pod.HasMemberFinalizer = true
	}
	if cc.K8s != nil && pod.Membership != nil {
		if err := cc.K8s.PatchMembership(ctx, *pod, *pod.Membership, pod.ReadinessGate); err != nil {
			cc.Logger.Error(err, "failed to patch pod membership", "pod", pod.Name)
		}
	}
	return result, nil
}

// connectToPrimary connects directly to primaryPod if given, otherwise
// falls back to probing the whole pod set for a reachable member
// (connectToCluster).
func (cc *ClusterController) connectToPrimary(ctx context.Context, primaryPod *v1alpha1.MySQLPod) (mysqladmin.ClusterHandle, error) {
	if primaryPod == nil {
		peer, err := cc.connectToCluster(ctx)
		if err != nil {
			return nil, err
		}
		return peer.Cluster, nil
	}
	dba, err := cc.Admin.ConnectDba(ctx, primaryPod.EndpointCO)
	if err != nil {
		return nil, err
	}
	cc.dba = dba
	cluster, err := dba.GetCluster(ctx)
	if err != nil {
		return nil, err
	}
	cc.dbaCluster = cluster
	return cluster, nil
}

// connectToCluster tries every non-deleting pod in turn until one answers
// with a live cluster handle. A pod that connects but reports
// INSTANCE_NOT_ONLINE is tracked separately so that "every pod
// reachable but offline" can be told apart from "nothing answered at all".
func (cc *ClusterController) connectToCluster(ctx context.Context) (*connectedPeer, error) {
	var lastErr error
	var offline int
	var total int

	for _, pod := range cc.Cluster.Pods {
		if pod.Deleting {
			continue
		}
		total++

		dba, err := cc.Admin.ConnectDba(ctx, pod.EndpointCO)
		if err != nil {
			cc.Logger.V(1).Info("connect_dba failed", "pod", pod.Name, "error", err)
			lastErr = err
			continue
		}

		cluster, err := dba.GetCluster(ctx)
		if err != nil {
			cc.Logger.Info("get_cluster failed", "pod", pod.Name, "error", err)
			if errcode.Is(err, errcode.InstanceNotOnline) {
				offline++
			}
			continue
		}

		cc.dba = dba
		cc.dbaCluster = cluster
		return &connectedPeer{Pod: pod, Cluster: cluster}, nil
	}

	if total > 0 && offline == total {
		return nil, clustererr.NewTransient(15*time.Second, "could not connect to any cluster member (complete outage)")
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, clustererr.NewTransient(15*time.Second, "could not connect to any cluster member")
}

// CreateCluster creates the InnoDB Cluster at seedPod. The membership
// finalizer is added before the mutating admin call and removed again if
// creation fails.
func (cc *ClusterController) CreateCluster(ctx context.Context, seedPod *v1alpha1.MySQLPod) error {
	ctx, span := tracing.StartAction(ctx, "create_cluster")
	defer span.End()

	cc.Logger.Info("creating cluster", "seed", seedPod.Name)

	assumeGTIDSetComplete := false
	initialDataSource := "blank"
	switch {
	case cc.Cluster.Spec.InitDB == nil:
		assumeGTIDSetComplete = true
	case cc.Cluster.Spec.InitDB.Clone != nil:
		initialDataSource = "clone=" + cc.Cluster.Spec.InitDB.Clone.URI
	case cc.Cluster.Spec.InitDB.Dump != nil && seedPod.Index == 0:
		switch {
		case cc.Cluster.Spec.InitDB.Dump.Storage.OCIObjectStorage != nil:
			initialDataSource = "dump=" + cc.Cluster.Spec.InitDB.Dump.Storage.OCIObjectStorage.BucketName
		case cc.Cluster.Spec.InitDB.Dump.Storage.PersistentVolumeClaim != nil:
			initialDataSource = "dump=" + cc.Cluster.Spec.InitDB.Dump.Storage.PersistentVolumeClaim.ClaimName
		default:
			return clustererr.NewPermanent("unknown dump storage mechanism")
		}
	case cc.Cluster.Spec.InitDB.Dump != nil:
		initialDataSource = "dump=pending"
	default:
		return clustererr.NewPermanent("unknown initDB source")
	}

	if err := cc.K8s.PatchClusterStatus(ctx, cc.Cluster.Key, func(status *v1alpha1.ClusterStatus) {
		status.InitialDataSource = initialDataSource
	}); err != nil {
		return err
	}

	memberSSLMode := "VERIFY_IDENTITY"
	if cc.Cluster.Spec.TLSUseSelfSigned {
		memberSSLMode = "REQUIRED"
	}
	createOpts := mysqladmin.CreateClusterOptions{
		GTIDSetIsComplete: assumeGTIDSetComplete,
		ManualStartOnBoot: true,
		MemberSSLMode:     memberSSLMode,
		ExitStateAction:   exitStateActionAbort,
		IPAllowlist:       cc.createAllowList(*seedPod),
	}

	dba, err := cc.Admin.ConnectDba(ctx, seedPod.EndpointCO)
	if err != nil {
		return err
	}
	cc.dba = dba
	defer dba.Close()

	if existing, err := dba.GetCluster(ctx); err == nil {
		cc.dbaCluster = existing
		cc.Logger.Info("cluster already exists", "seed", seedPod.Name)
	}

	if err := cc.K8s.AddMemberFinalizer(ctx, *seedPod); err != nil {
		return err
	}
	seedPod.HasMemberFinalizer = true

	if cc.dbaCluster == nil {
		cc.logMySQLInfo(ctx, *seedPod, dba.Session())
		cc.Logger.Info("create_cluster", "seed", seedPod.Name, "options", createOpts)

		created, err := dba.CreateCluster(ctx, cc.Cluster.Key.GRClusterName(), createOpts)
		if err != nil {
			if rmErr := cc.K8s.RemoveMemberFinalizer(ctx, *seedPod); rmErr != nil {
				cc.Logger.Error(rmErr, "failed to remove member finalizer after failed create", "pod", seedPod.Name)
			} else {
				seedPod.HasMemberFinalizer = false
			}

			if errcode.Is(err, errcode.InstanceAlreadyInGR) {
				cc.Logger.Info("GR already running, stopping before retrying", "pod", seedPod.Name)
				if stopErr := dba.Session().StopGroupReplication(ctx); stopErr != nil {
					return clustererr.WrapTransient(stopErr, 3*time.Second, "GR already running while creating cluster but could not stop it")
				}
			}
			return err
		}
		cc.dbaCluster = created
		cc.Logger.Info("create_cluster OK")
	}

	if _, err := cc.probeMemberStatus(ctx, seedPod, dba.Session(), true); err != nil {
		return err
	}

	if cc.Cluster.Spec.Instances == 1 {
		return cc.PostCreateActions(ctx, dba.Session())
	}
	return nil
}

// PostCreateActions provisions the router account and (when sized) the
// router deployment. Idempotent; runs once the declared instance count is
// first reached.
func (cc *ClusterController) PostCreateActions(ctx context.Context, session sqlsession.Session) error {
	cc.Logger.Info("post_create_actions")

	exists, err := session.GrantsExist(ctx, cc.Cluster.RouterAccount.User)
	if err != nil {
		return err
	}
	cc.Logger.V(1).Info("router account", "user", cc.Cluster.RouterAccount.User, "update", exists)
	if err := cc.dbaCluster.SetupRouterAccount(ctx, cc.Cluster.RouterAccount.User, cc.Cluster.RouterAccount.Password, exists); err != nil {
		return err
	}

	// Backup account provisioning belongs to the backup subsystem, which
	// owns its own SQL surface; here it's logged, not executed.
	cc.Logger.Info("backup account provisioning is external to this repo", "user", cc.Cluster.BackupAccount.User)

	if cc.Cluster.Spec.Router.Instances > 0 && cc.Router != nil {
		cc.Logger.V(1).Info("setting router replicas", "instances", cc.Cluster.Spec.Router.Instances)
		if err := cc.Router.SetSize(ctx, cc.Cluster.Key, cc.Cluster.Spec.Router.Instances); err != nil {
			return err
		}
		cc.Cluster.RouterReplicas = cc.Cluster.Spec.Router.Instances
	}
	return nil
}

// RebootCluster reboots a fully OFFLINE cluster from seedPodIndex and
// rejoins every other pod.
func (cc *ClusterController) RebootCluster(ctx context.Context, seedPodIndex int) error {
	var seedPod *v1alpha1.MySQLPod
	pods := cc.Cluster.Pods
	for i := range pods {
		if pods[i].Index == seedPodIndex {
			seedPod = &pods[i]
			break
		}
	}
	if seedPod == nil {
		return clustererr.NewPermanent(fmt.Sprintf("reboot_cluster: no pod with index %d", seedPodIndex))
	}

	ctx, span := tracing.StartAction(ctx, "reboot_cluster")
	defer span.End()

	cc.Logger.Info("rebooting cluster", "seed", seedPod.Name)

	dba, err := cc.Admin.ConnectDba(ctx, seedPod.EndpointCO)
	if err != nil {
		return err
	}
	cc.dba = dba
	defer dba.Close()

	cc.logMySQLInfo(ctx, *seedPod, dba.Session())

	if err := cc.K8s.AddMemberFinalizer(ctx, *seedPod); err != nil {
		return err
	}
	seedPod.HasMemberFinalizer = true

	rebooted, err := dba.RebootClusterFromCompleteOutage(ctx)
	if err != nil {
		return err
	}
	cc.dbaCluster = rebooted
	cc.Logger.Info("reboot_cluster_from_complete_outage OK")

	for i := range pods {
		if pods[i].Index == seedPodIndex {
			continue
		}
		session, err := cc.Dial(ctx, pods[i])
		if err != nil {
			return fmt.Errorf("reboot_cluster: connect to pod %s: %w", pods[i].Name, err)
		}
		rejoinErr := cc.RejoinInstance(ctx, &pods[i], session)
		session.Close()
		if rejoinErr != nil {
			return rejoinErr
		}
	}

	cc.Logger.Info("cluster reboot successful")
	_, err = cc.probeMemberStatus(ctx, seedPod, dba.Session(), true)
	return err
}

// ForceQuorum forces quorum using seedPod as the surviving partition.
func (cc *ClusterController) ForceQuorum(ctx context.Context, seedPod *v1alpha1.MySQLPod) error {
	ctx, span := tracing.StartAction(ctx, "force_quorum")
	defer span.End()

	cc.Logger.Info("forcing quorum", "seed", seedPod.Name)
	if _, err := cc.connectToPrimary(ctx, seedPod); err != nil {
		return err
	}
	if err := cc.dbaCluster.ForceQuorumUsingPartitionOf(ctx, seedPod.EndpointCO); err != nil {
		return err
	}
	cc.Logger.Info("force quorum successful")
	return nil
}

// DestroyCluster stops Group Replication on the last remaining pod of a
// cluster being deleted. Failures here are logged and swallowed, since a
// cluster on its way out must still have its finalizer cleared to let
// Kubernetes finish the deletion.
func (cc *ClusterController) DestroyCluster(ctx context.Context, lastPod *v1alpha1.MySQLPod) error {
	ctx, span := tracing.StartAction(ctx, "destroy_cluster")
	defer span.End()

	cc.Logger.Info("stopping GR for last cluster member", "pod", lastPod.Name)

	session, err := cc.Dial(ctx, *lastPod)
	if err != nil {
		cc.Logger.Error(err, "error connecting to last member, ignoring", "pod", lastPod.Name)
		return cc.K8s.RemoveMemberFinalizer(ctx, *lastPod)
	}
	defer session.Close()

	if err := session.StopGroupReplication(ctx); err != nil {
		cc.Logger.Error(err, "error stopping GR at last cluster member, ignoring", "pod", lastPod.Name)
		return cc.K8s.RemoveMemberFinalizer(ctx, *lastPod)
	}
	cc.Logger.Info("stop GR OK")
	return cc.K8s.RemoveMemberFinalizer(ctx, *lastPod)
}

// JoinInstance adds pod to the cluster, retrying once with a clone recovery
// if the incremental attempt fails.
func (cc *ClusterController) JoinInstance(ctx context.Context, pod *v1alpha1.MySQLPod, session sqlsession.Session) error {
	ctx, span := tracing.StartAction(ctx, "join_instance")
	defer span.End()

	cc.Logger.Info("adding pod to cluster", "pod", pod.Name)

	peer, err := cc.connectToCluster(ctx)
	if err != nil {
		return err
	}

	cc.logMySQLInfo(ctx, *pod, session)

	addOpts := mysqladmin.AddInstanceOptions{
		RecoveryMethod:  "incremental",
		ExitStateAction: exitStateActionAbort,
		IPAllowlist:     cc.createAllowList(*pod),
	}
	cc.Logger.Info("add_instance", "pod", pod.Name, "peer", peer.Pod.Name, "options", addOpts)

	if err := cc.K8s.AddMemberFinalizer(ctx, *pod); err != nil {
		return err
	}
	pod.HasMemberFinalizer = true

	if err := cc.dbaCluster.AddInstance(ctx, pod.EndpointCO, addOpts); err != nil {
		cc.Logger.Error(err, "add_instance failed, retrying with clone", "pod", pod.Name)
		addOpts.RecoveryMethod = "clone"
		if err := cc.dbaCluster.AddInstance(ctx, pod.EndpointCO, addOpts); err != nil {
			cc.Logger.Error(err, "add_instance failed a second time", "pod", pod.Name)
			return err
		}
	}

	result, err := cc.probeMemberStatus(ctx, pod, session, true)
	if err != nil {
		return err
	}
	cc.Logger.Info("joined", "pod", pod.Name, "member_count", result.MemberCount)

	if cc.Cluster.RouterReplicas == 0 && cc.Cluster.Spec.Router.Instances > 0 && result.MemberCount == int(cc.Cluster.Spec.Instances) {
		return cc.PostCreateActions(ctx, cc.dba.Session())
	}
	return nil
}

// RejoinInstance rejoins a known-but-offline pod.
func (cc *ClusterController) RejoinInstance(ctx context.Context, pod *v1alpha1.MySQLPod, session sqlsession.Session) error {
	ctx, span := tracing.StartAction(ctx, "rejoin_instance")
	defer span.End()

	cc.Logger.Info("rejoining pod to cluster", "pod", pod.Name)

	if cc.dbaCluster == nil {
		if _, err := cc.connectToCluster(ctx); err != nil {
			return err
		}
	}

	cc.logMySQLInfo(ctx, *pod, session)

	if err := cc.dbaCluster.RejoinInstance(ctx, pod.Endpoint); err != nil {
		cc.Logger.Error(err, "rejoin_instance failed", "pod", pod.Name)
		return err
	}

	_, err := cc.probeMemberStatus(ctx, pod, session, false)
	return err
}

// RemoveInstance removes pod from the cluster, first gracefully then with
// force, tolerating a metadata-already-missing peer response and tolerating
// total unavailability when the cluster itself is being deleted.
func (cc *ClusterController) RemoveInstance(ctx context.Context, pod *v1alpha1.MySQLPod, force bool) error {
	ctx, span := tracing.StartAction(ctx, "remove_instance")
	defer span.End()

	cc.Logger.Info("removing pod from cluster", "pod", pod.Name)

	if len(cc.Cluster.Pods) > 1 {
		var peer *connectedPeer
		p, err := cc.connectToCluster(ctx)
		switch {
		case err == nil:
			peer = p
		case cc.Cluster.Deleting:
			cc.Logger.Error(err, "could not connect to cluster, ignoring because cluster is deleting", "pod", pod.Name)
		default:
			cc.Logger.Error(err, "could not connect to cluster", "pod", pod.Name)
			return err
		}

		if peer != nil {
			removed := false
			if !force {
				cc.Logger.Info("remove_instance", "pod", pod.Name, "peer", peer.Pod.Name)
				if err := cc.dbaCluster.RemoveInstance(ctx, pod.Endpoint, mysqladmin.RemoveInstanceOptions{}); err != nil {
					cc.Logger.Error(err, "remove_instance failed", "pod", pod.Name)
					switch {
					case errcode.Is(err, errcode.OptionPreventsStatement):
						return clustererr.NewTransient(5*time.Second, fmt.Sprintf("%s is a PRIMARY but super_read_only is ON", peer.Pod.Name))
					case errcode.Is(err, errcode.MemberMetadataMissing):
						removed = true
					}
				} else {
					removed = true
				}
			}

			if !removed {
				cc.Logger.Info("remove_instance (force)", "pod", pod.Name, "peer", peer.Pod.Name)
				if err := cc.dbaCluster.RemoveInstance(ctx, pod.Endpoint, mysqladmin.RemoveInstanceOptions{Force: true}); err != nil {
					switch {
					case errcode.Is(err, errcode.MemberMetadataMissing):
						// Already removed, likely a retry of a prior attempt.
					case cc.Cluster.Deleting:
						cc.Logger.Info("force remove_instance failed, ignoring because cluster is deleting", "pod", pod.Name, "error", err)
					default:
						cc.Logger.Error(err, "force remove_instance failed", "pod", pod.Name)
						return err
					}
				} else {
					cc.Logger.Info("remove_instance OK (force)")
				}
			}
		} else {
			cc.Logger.Error(nil, "cluster is not available, skipping clean removal", "pod", pod.Name)
		}
	}

	if err := cc.K8s.RemoveMemberFinalizer(ctx, *pod); err != nil {
		return err
	}
	pod.HasMemberFinalizer = false
	cc.Logger.Info("removed finalizer", "pod", pod.Name)
	return nil
}

// ReconcilePod classifies pod against the cluster reached through
// primaryPod and drives it toward membership.
func (cc *ClusterController) ReconcilePod(ctx context.Context, primaryPod *v1alpha1.MySQLPod, pod *v1alpha1.MySQLPod) error {
	session, err := cc.Dial(ctx, *pod)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := cc.connectToPrimary(ctx, primaryPod); err != nil {
		return err
	}
	primarySession := cc.dba.Session()

	clusterMembers := map[string]bool{}
	if gs, err := primarySession.GroupStatus(ctx); err == nil {
		for _, m := range gs.Members {
			clusterMembers[m.MemberID] = true
		}
	}
	clusterGTID := gtid.Set{}
	if executed, _, err := primarySession.GTIDExecuted(ctx); err == nil {
		clusterGTID = gtid.Parse(executed)
	}

	status, _ := diagnose.DiagnoseCandidate(ctx, session, clusterMembers, clusterGTID)
	cc.Logger.Info("reconciling pod", "pod", pod.Name, "state", status, "deleting", pod.Deleting, "cluster_deleting", cc.Cluster.Deleting)

	if pod.Deleting || cc.Cluster.Deleting {
		return nil
	}

	switch status {
	case diagnose.CandidateJoinable:
		cc.Logger.Info("joining pod to cluster", "pod", pod.Name)
		return cc.JoinInstance(ctx, pod, session)
	case diagnose.CandidateRejoinable:
		cc.Logger.Info("rejoining pod to cluster", "pod", pod.Name)
		return cc.RejoinInstance(ctx, pod, session)
	case diagnose.CandidateMember:
		cc.Logger.V(1).Info("pod already a member", "pod", pod.Name)
		_, err := cc.probeMemberStatus(ctx, pod, session, false)
		return err
	case diagnose.CandidateUnreachable:
		cc.Logger.Error(nil, "pod is unreachable", "pod", pod.Name)
		_, err := cc.probeMemberStatus(ctx, pod, session, false)
		return err
	default:
		// BROKEN: auto-repairing a candidate with errant transactions would
		// mean cloning over and losing them, so it's left to a human. The
		// pod is still probed and logged, never ignored.
		cc.Logger.Error(nil, "pod is in an unjoinable state", "pod", pod.Name, "state", status)
		_, err := cc.probeMemberStatus(ctx, pod, session, false)
		return err
	}
}

// RepairCluster acts on a diagnosed cluster status. The _UNCERTAIN states
// refuse any destructive action while some members are unreachable: a
// minority partition may still be alive elsewhere.
func (cc *ClusterController) RepairCluster(ctx context.Context, diag diagnose.ClusterStatusReport) error {
	switch diag.Status {
	case v1alpha1.StatusOnline, v1alpha1.StatusOnlinePartial, v1alpha1.StatusOnlineUncertain:
		return nil

	case v1alpha1.StatusOffline:
		reachable := 0
		for _, g := range diag.GTIDExecuted {
			if g != nil {
				reachable++
			}
		}
		if reachable != len(cc.Cluster.Pods) {
			return clustererr.NewTransient(5*time.Second, "cluster cannot be restored because there are unreachable pods")
		}
		seedIndex := selectPodWithMostGTIDs(diag.GTIDExecuted)
		cc.eventf(k8sobj.ReasonRepairing, "restoring OFFLINE cluster through pod index %d", seedIndex)
		return cc.Retry.Call(ctx, func(ctx context.Context) error { return cc.RebootCluster(ctx, seedIndex) })

	case v1alpha1.StatusOfflineUncertain:
		return clustererr.NewTransient(10*time.Second, fmt.Sprintf("unreachable members found while in state %s, waiting", diag.Status))

	case v1alpha1.StatusNoQuorum:
		if len(diag.QuorumCandidates) == 0 {
			return clustererr.NewTransient(10*time.Second, "no quorum candidate available to force quorum from")
		}
		seed := diag.QuorumCandidates[0]
		cc.eventf(k8sobj.ReasonRepairing, "restoring quorum of cluster")
		return cc.Retry.Call(ctx, func(ctx context.Context) error { return cc.ForceQuorum(ctx, &seed) })

	case v1alpha1.StatusNoQuorumUncertain:
		return clustererr.NewTransient(10*time.Second, fmt.Sprintf("unreachable members found while in state %s, waiting", diag.Status))

	case v1alpha1.StatusSplitBrain, v1alpha1.StatusSplitBrainUncertain:
		cc.eventf(k8sobj.ReasonSplitBrain, "cluster is in a SPLIT-BRAIN state and cannot be restored automatically")
		return clustererr.NewPermanent(fmt.Sprintf("unable to recover from current cluster state, user action required: state=%s", diag.Status))

	case v1alpha1.StatusUnknown:
		return clustererr.NewTransient(10*time.Second, fmt.Sprintf("no members of the cluster could be reached: state=%s", diag.Status))

	case v1alpha1.StatusInvalid:
		cc.eventf(k8sobj.ReasonHumanInterventionRequired, "cluster state is invalid and cannot be restored automatically")
		return clustererr.NewPermanent(fmt.Sprintf("cluster state is invalid and cannot be restored automatically: state=%s", diag.Status))

	case v1alpha1.StatusFinalizing:
		return nil

	default:
		return clustererr.NewPermanent(fmt.Sprintf("invalid cluster state %s", diag.Status))
	}
}

func (cc *ClusterController) eventf(reason k8sobj.EventReason, messageFmt string, args ...interface{}) {
	if cc.K8s == nil || cc.ClusterObject == nil {
		return
	}
	cc.K8s.Eventf(cc.ClusterObject, "Warning", reason, messageFmt, args...)
}
