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

// Package mutex serializes admin actions per cluster. The Registry is the
// single process-wide singleton in this operator; its critical section
// covers only the map test-and-set.
package mutex

import (
	"sync"
	"time"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
)

// CollisionDelay is the requeue delay surfaced when TryAcquire fails:
// contention converts into backoff, never thread blocking.
const CollisionDelay = 10 * time.Second

// Guard represents a held lock. Release is idempotent and safe to defer
// unconditionally at every call site.
type Guard struct {
	registry *Registry
	key      v1alpha1.ClusterKey
	released bool
	mu       sync.Mutex
}

// Release gives up the lock. Calling Release more than once is a no-op.
func (g *Guard) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return
	}
	g.released = true
	g.registry.release(g.key)
}

// Registry is the process-wide mutex table: a map from cluster key to
// owner tag, protected by a lock whose critical section is the map
// test-and-set itself.
type Registry struct {
	mu    sync.Mutex
	owner map[v1alpha1.ClusterKey]string
}

// NewRegistry builds an empty registry. One instance is shared process-wide.
func NewRegistry() *Registry {
	return &Registry{owner: map[v1alpha1.ClusterKey]string{}}
}

// TryAcquire attempts to take the lock for key on behalf of owner. It never
// blocks: if key is already held, by any owner including owner itself, it
// returns (nil, false) immediately.
func (r *Registry) TryAcquire(key v1alpha1.ClusterKey, owner string) (*Guard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.owner[key]; held {
		return nil, false
	}
	r.owner[key] = owner
	return &Guard{registry: r, key: key}, true
}

func (r *Registry) release(key v1alpha1.ClusterKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owner, key)
}

// Acquire is the call-site convenience wrapper: on collision it returns
// the temporary error the reconciler propagates directly, with
// CollisionDelay baked in, instead of making every caller translate a bare
// bool into clustererr itself.
func Acquire(r *Registry, key v1alpha1.ClusterKey, owner string) (*Guard, error) {
	guard, ok := r.TryAcquire(key, owner)
	if !ok {
		return nil, clustererr.NewTransient(CollisionDelay, "cluster mutex held by another owner")
	}
	return guard, nil
}
