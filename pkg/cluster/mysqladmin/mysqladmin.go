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

// Package mysqladmin declares the MySQL administrative client the
// reconciliation engine talks to: the component that actually executes
// Group Replication primitives via mysqlsh's AdminAPI. The engine only
// ever sees this interface; the real mysqlsh binding ships separately with
// the operator deployment.
package mysqladmin

import (
	"context"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
)

// ConnectOptions bundles what the admin client needs to reach a pod.
type ConnectOptions = v1alpha1.EndpointConnectOptions

// CreateClusterOptions is the option set passed to dba.createCluster.
type CreateClusterOptions struct {
	GTIDSetIsComplete bool
	ManualStartOnBoot bool
	MemberSSLMode     string
	ExitStateAction   string
	IPAllowlist       string
}

// AddInstanceOptions is the option set passed to cluster.addInstance.
type AddInstanceOptions struct {
	RecoveryMethod  string // "incremental" | "clone"
	ExitStateAction string
	IPAllowlist     string
}

// RemoveInstanceOptions is the option set passed to cluster.removeInstance.
type RemoveInstanceOptions struct {
	Force bool
}

// RuntimeStatus is the opaque status() payload, logged but not parsed by
// the core beyond what the Member Probe already extracts via SQL.
type RuntimeStatus struct {
	Raw string
}

// ClusterHandle is a handle to an existing (or newly created) InnoDB Cluster.
type ClusterHandle interface {
	AddInstance(ctx context.Context, co ConnectOptions, opts AddInstanceOptions) error
	RejoinInstance(ctx context.Context, endpoint string) error
	RemoveInstance(ctx context.Context, endpoint string, opts RemoveInstanceOptions) error
	ForceQuorumUsingPartitionOf(ctx context.Context, co ConnectOptions) error
	Status(ctx context.Context) (RuntimeStatus, error)
	SetupRouterAccount(ctx context.Context, user, password string, update bool) error
}

// DbaHandle is a Dba session opened against one specific pod.
type DbaHandle interface {
	GetCluster(ctx context.Context) (ClusterHandle, error)
	CreateCluster(ctx context.Context, name string, opts CreateClusterOptions) (ClusterHandle, error)
	RebootClusterFromCompleteOutage(ctx context.Context) (ClusterHandle, error)
	// Session exposes the raw SQL session multiplexed over the same
	// connection, for the probe's auxiliary reads and STOP GROUP_REPLICATION.
	Session() sqlsession.Session
	Close() error
}

// Client opens Dba sessions. This is the single entry point the engine
// holds onto.
type Client interface {
	ConnectDba(ctx context.Context, co ConnectOptions) (DbaHandle, error)
}

// unconfiguredClient is the default Client wired at process start, until an
// operator deployment supplies a real mysqlsh-backed one. ConnectDba always
// fails with a permanent error, so a reconcile against an unconfigured
// process surfaces as "human intervention required" rather than retrying
// forever or silently doing nothing.
type unconfiguredClient struct{}

func (unconfiguredClient) ConnectDba(ctx context.Context, co ConnectOptions) (DbaHandle, error) {
	return nil, clustererr.WrapPermanent(errUnconfigured, "connect dba")
}

var errUnconfigured = &unconfiguredError{}

type unconfiguredError struct{}

func (*unconfiguredError) Error() string {
	return "mysqladmin: no admin client bound; this process was started without a mysqlsh-backed Client implementation"
}

// Unconfigured returns a Client whose ConnectDba always fails, the wiring
// default for cmd/mysql-operator-controller until a deployment overrides it
// with a real implementation.
func Unconfigured() Client {
	return unconfiguredClient{}
}
