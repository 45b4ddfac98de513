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

// Package fake provides a scriptable in-memory double of pkg/cluster/mysqladmin,
// used by every controller test in this repo in place of a real mysqlsh
// AdminAPI binding. It models just enough cluster membership state to make
// multi-pod lifecycle scenarios assertable without a live server.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mysqladmin"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
)

// Call identifies one admin-client operation, for scripting errors and
// recording a call log that tests assert against.
type Call string

const (
	CallConnectDba     Call = "ConnectDba"
	CallGetCluster     Call = "GetCluster"
	CallCreateCluster  Call = "CreateCluster"
	CallReboot         Call = "RebootClusterFromCompleteOutage"
	CallAddInstance    Call = "AddInstance"
	CallRejoinInstance Call = "RejoinInstance"
	CallRemoveInstance Call = "RemoveInstance"
	CallForceQuorum    Call = "ForceQuorumUsingPartitionOf"
	CallStatus         Call = "Status"
	CallSetupRouter    Call = "SetupRouterAccount"
)

// Cluster is the fake's in-memory view of one InnoDB Cluster's membership.
type Cluster struct {
	Name    string
	Exists  bool
	Members []string // endpoints, in join order
}

func (c *Cluster) hasMember(endpoint string) bool {
	for _, m := range c.Members {
		if m == endpoint {
			return true
		}
	}
	return false
}

// Invocation records one call the fake observed, for assertions.
type Invocation struct {
	Call     Call
	Endpoint string
}

// Client is a scriptable mysqladmin.Client. Build one with NewClient; the
// zero value has no error maps and no cluster view, and panics on use.
type Client struct {
	mu sync.Mutex

	// Errors maps a Call (optionally Call+"@"+endpoint for per-endpoint
	// scripting) to the error that call should return next. Consumed once
	// per use unless Sticky is set for that key.
	Errors map[string]error
	Sticky map[string]bool

	// Sessions supplies the sqlsession.Session returned by DbaHandle.Session
	// for a given endpoint, if the test needs to exercise probe behavior
	// through the same fake. Optional; nil endpoints get a nil session.
	Sessions map[string]sqlsession.Session

	clusterName string
	cluster     *Cluster
	calls       []Invocation
}

var _ mysqladmin.Client = (*Client)(nil)

// NewClient builds an empty fake scoped to a single cluster name - this repo
// reconciles one InnoDBCluster (and therefore one GR cluster) per Client in
// practice, matching how the controller opens a fresh Dba connection per
// reconcile.
func NewClient(clusterName string) *Client {
	return &Client{
		Errors:      map[string]error{},
		Sticky:      map[string]bool{},
		Sessions:    map[string]sqlsession.Session{},
		clusterName: clusterName,
		cluster:     &Cluster{Name: clusterName},
	}
}

// Cluster returns the fake's current membership view, for assertions.
func (c *Client) Cluster() Cluster {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *c.cluster
	cp.Members = append([]string(nil), c.cluster.Members...)
	return cp
}

// Calls returns the call log recorded so far, in order.
func (c *Client) Calls() []Invocation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Invocation(nil), c.calls...)
}

// ScriptError arranges for the next invocation of call (optionally scoped to
// one endpoint with ScriptErrorFor) to return err. Pass sticky=true to make
// every subsequent invocation return it, for permanent-failure scenarios.
func (c *Client) ScriptError(call Call, err error, sticky bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Errors[string(call)] = err
	c.Sticky[string(call)] = sticky
}

// ScriptErrorFor scopes a scripted error to one endpoint.
func (c *Client) ScriptErrorFor(call Call, endpoint string, err error, sticky bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(call) + "@" + endpoint
	c.Errors[key] = err
	c.Sticky[key] = sticky
}

func (c *Client) takeError(call Call, endpoint string) error {
	for _, key := range []string{string(call) + "@" + endpoint, string(call)} {
		if err, ok := c.Errors[key]; ok {
			if !c.Sticky[key] {
				delete(c.Errors, key)
			}
			return err
		}
	}
	return nil
}

func (c *Client) record(call Call, endpoint string) {
	c.calls = append(c.calls, Invocation{Call: call, Endpoint: endpoint})
}

// ConnectDba implements mysqladmin.Client.
func (c *Client) ConnectDba(ctx context.Context, co mysqladmin.ConnectOptions) (mysqladmin.DbaHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(CallConnectDba, co.Endpoint)
	if err := c.takeError(CallConnectDba, co.Endpoint); err != nil {
		return nil, err
	}
	return &dbaHandle{client: c, endpoint: co.Endpoint}, nil
}

type dbaHandle struct {
	client   *Client
	endpoint string
	closed   bool
}

func (h *dbaHandle) GetCluster(ctx context.Context) (mysqladmin.ClusterHandle, error) {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallGetCluster, h.endpoint)
	if err := h.client.takeError(CallGetCluster, h.endpoint); err != nil {
		return nil, err
	}
	if !h.client.cluster.Exists {
		return nil, fmt.Errorf("fake mysqladmin: cluster %q does not exist", h.client.clusterName)
	}
	return &clusterHandle{client: h.client}, nil
}

func (h *dbaHandle) CreateCluster(ctx context.Context, name string, opts mysqladmin.CreateClusterOptions) (mysqladmin.ClusterHandle, error) {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallCreateCluster, h.endpoint)
	if err := h.client.takeError(CallCreateCluster, h.endpoint); err != nil {
		return nil, err
	}
	h.client.cluster.Exists = true
	h.client.cluster.Name = name
	h.client.cluster.Members = []string{h.endpoint}
	return &clusterHandle{client: h.client}, nil
}

func (h *dbaHandle) RebootClusterFromCompleteOutage(ctx context.Context) (mysqladmin.ClusterHandle, error) {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallReboot, h.endpoint)
	if err := h.client.takeError(CallReboot, h.endpoint); err != nil {
		return nil, err
	}
	h.client.cluster.Exists = true
	h.client.cluster.Members = []string{h.endpoint}
	return &clusterHandle{client: h.client}, nil
}

func (h *dbaHandle) Session() sqlsession.Session {
	return h.client.Sessions[h.endpoint]
}

func (h *dbaHandle) Close() error {
	h.closed = true
	return nil
}

type clusterHandle struct {
	client *Client
}

func (h *clusterHandle) AddInstance(ctx context.Context, co mysqladmin.ConnectOptions, opts mysqladmin.AddInstanceOptions) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallAddInstance, co.Endpoint)
	if err := h.client.takeError(CallAddInstance, co.Endpoint); err != nil {
		return err
	}
	if !h.client.cluster.hasMember(co.Endpoint) {
		h.client.cluster.Members = append(h.client.cluster.Members, co.Endpoint)
		sort.Strings(h.client.cluster.Members)
	}
	return nil
}

func (h *clusterHandle) RejoinInstance(ctx context.Context, endpoint string) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallRejoinInstance, endpoint)
	if err := h.client.takeError(CallRejoinInstance, endpoint); err != nil {
		return err
	}
	if !h.client.cluster.hasMember(endpoint) {
		h.client.cluster.Members = append(h.client.cluster.Members, endpoint)
		sort.Strings(h.client.cluster.Members)
	}
	return nil
}

func (h *clusterHandle) RemoveInstance(ctx context.Context, endpoint string, opts mysqladmin.RemoveInstanceOptions) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallRemoveInstance, endpoint)
	if err := h.client.takeError(CallRemoveInstance, endpoint); err != nil {
		return err
	}
	members := h.client.cluster.Members[:0]
	for _, m := range h.client.cluster.Members {
		if m != endpoint {
			members = append(members, m)
		}
	}
	h.client.cluster.Members = members
	return nil
}

func (h *clusterHandle) ForceQuorumUsingPartitionOf(ctx context.Context, co mysqladmin.ConnectOptions) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallForceQuorum, co.Endpoint)
	return h.client.takeError(CallForceQuorum, co.Endpoint)
}

func (h *clusterHandle) Status(ctx context.Context) (mysqladmin.RuntimeStatus, error) {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallStatus, "")
	if err := h.client.takeError(CallStatus, ""); err != nil {
		return mysqladmin.RuntimeStatus{}, err
	}
	return mysqladmin.RuntimeStatus{Raw: fmt.Sprintf("%d members", len(h.client.cluster.Members))}, nil
}

func (h *clusterHandle) SetupRouterAccount(ctx context.Context, user, password string, update bool) error {
	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	h.client.record(CallSetupRouter, "")
	return h.client.takeError(CallSetupRouter, "")
}
