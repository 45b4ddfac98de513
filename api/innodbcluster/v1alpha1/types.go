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

// Package v1alpha1 holds the value types for the InnoDBCluster custom
// resource and the pod records the reconciliation engine operates on.
//
// These are plain value types, not a generated CRD (no deepcopy/runtime.Object
// wiring); the hand-written InnoDBCluster object and its scheme registration
// live in internal/controller/innodbcluster.
package v1alpha1

import (
	"strings"
	"time"
)

// ClusterKey identifies an InnoDBCluster resource by namespace and name.
type ClusterKey struct {
	Namespace string
	Name      string
}

func (k ClusterKey) String() string {
	return k.Namespace + "/" + k.Name
}

// GRClusterName returns the Group Replication cluster name derived from the
// resource name: '-' and '.' are replaced with '_' so the name is a valid
// InnoDB Cluster identifier.
func (k ClusterKey) GRClusterName() string {
	r := strings.NewReplacer("-", "_", ".", "_")
	return r.Replace(k.Name)
}

// InnoDBClusterSpec is the user-declared desired state of a cluster.
type InnoDBClusterSpec struct {
	// Instances is the desired number of MySQL pods (1-9).
	Instances int32
	Router    RouterSpec
	// InitDB describes how the cluster should be seeded. Nil means a blank
	// cluster created from scratch.
	InitDB           *InitDBSpec
	TLSUseSelfSigned bool
	Version          string
}

// RouterSpec configures the (externally sized) MySQL Router deployment.
type RouterSpec struct {
	Instances int32
}

// InitDBSpec describes an external data source used to seed a new cluster.
// Exactly one of Clone or Dump should be set.
type InitDBSpec struct {
	Clone *CloneSpec
	Dump  *DumpSpec
}

// CloneSpec seeds the cluster via MySQL Clone from a remote donor instance.
type CloneSpec struct {
	URI string
}

// DumpSpec seeds the cluster by restoring a logical dump.
type DumpSpec struct {
	Storage DumpStorageSpec
}

// DumpStorageSpec names where a dump lives. Exactly one field is set.
type DumpStorageSpec struct {
	OCIObjectStorage      *OCIObjectStorageSpec
	PersistentVolumeClaim *PVCStorageSpec
}

// OCIObjectStorageSpec points at a dump stored in OCI Object Storage.
type OCIObjectStorageSpec struct {
	BucketName string
}

// PVCStorageSpec points at a dump staged on a PersistentVolumeClaim.
type PVCStorageSpec struct {
	ClaimName string
}

// ClusterDiagStatus is the set of diagnosed cluster health states.
type ClusterDiagStatus string

const (
	StatusInitializing        ClusterDiagStatus = "INITIALIZING"
	StatusOnline              ClusterDiagStatus = "ONLINE"
	StatusOnlinePartial       ClusterDiagStatus = "ONLINE_PARTIAL"
	StatusOnlineUncertain     ClusterDiagStatus = "ONLINE_UNCERTAIN"
	StatusOffline             ClusterDiagStatus = "OFFLINE"
	StatusOfflineUncertain    ClusterDiagStatus = "OFFLINE_UNCERTAIN"
	StatusNoQuorum            ClusterDiagStatus = "NO_QUORUM"
	StatusNoQuorumUncertain   ClusterDiagStatus = "NO_QUORUM_UNCERTAIN"
	StatusSplitBrain          ClusterDiagStatus = "SPLIT_BRAIN"
	StatusSplitBrainUncertain ClusterDiagStatus = "SPLIT_BRAIN_UNCERTAIN"
	StatusUnknown             ClusterDiagStatus = "UNKNOWN"
	StatusInvalid             ClusterDiagStatus = "INVALID"
	StatusFinalizing          ClusterDiagStatus = "FINALIZING"
)

// IsUncertain reports whether the status carries the "_UNCERTAIN" suffix,
// i.e. some members could not be reached when the diagnosis was made. These
// statuses exist specifically to suppress destructive recovery while a
// minority partition may be alive elsewhere.
func (s ClusterDiagStatus) IsUncertain() bool {
	return strings.HasSuffix(string(s), "_UNCERTAIN")
}

// IsOnlineVariant reports whether s is ONLINE, ONLINE_PARTIAL or ONLINE_UNCERTAIN.
func (s ClusterDiagStatus) IsOnlineVariant() bool {
	switch s {
	case StatusOnline, StatusOnlinePartial, StatusOnlineUncertain:
		return true
	default:
		return false
	}
}

// IsSplitBrain reports whether s is SPLIT_BRAIN or SPLIT_BRAIN_UNCERTAIN.
func (s ClusterDiagStatus) IsSplitBrain() bool {
	return s == StatusSplitBrain || s == StatusSplitBrainUncertain
}

// IsTerminal reports whether no further reconciliation action is ever taken
// for this status. Only FINALIZING is terminal in this state machine; every
// other status is revisited on the next event.
func (s ClusterDiagStatus) IsTerminal() bool {
	return s == StatusFinalizing
}

// ClusterStatus is the observed status subresource of an InnoDBCluster.
type ClusterStatus struct {
	Status            ClusterDiagStatus
	OnlineInstances   int
	LastProbeTime     time.Time
	CreateTime        *time.Time
	InitialDataSource string
	// ObservedGeneration and DiagnosisID are ambient observability metadata,
	// not part of the state machine: they exist purely to correlate a status
	// snapshot with logs/traces/metrics.
	ObservedGeneration int64
	DiagnosisID        string
}

// MembershipInfo is the persisted, per-pod GR membership annotation.
type MembershipInfo struct {
	MemberID           string
	Role               string
	Status             string
	ViewID             string
	Version            string
	LastTransitionTime time.Time
}

// EndpointConnectOptions bundles the connection options the admin client
// needs to reach a pod (host/port plus whatever auth/TLS options the external
// collaborator requires); the core treats it as an opaque value it passes
// through.
type EndpointConnectOptions struct {
	Endpoint string
	Options  map[string]string
}

// MySQLPod is a pod record keyed by (cluster, index).
type MySQLPod struct {
	Cluster      ClusterKey
	Index        int
	Name         string
	Endpoint     string
	EndpointCO   EndpointConnectOptions
	PodIPAddress string
	// Deleting is true once Kubernetes has started terminating this pod.
	Deleting bool
	// HasMemberFinalizer holds iff this pod has ever been added as a GR
	// member and not yet cleanly removed; it blocks pod deletion until
	// removal completes.
	HasMemberFinalizer bool
	Membership         *MembershipInfo
	// ReadinessGate mirrors the pod's boolean GR readiness gate, true iff
	// the last probe observed Status == "ONLINE".
	ReadinessGate bool
}

// String renders a pod for log messages, e.g. "ns/cluster-1-0".
func (p MySQLPod) String() string {
	return p.Cluster.Namespace + "/" + p.Name
}
