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

// Package innodbcluster adapts Kubernetes watch events into the
// reconciliation core (pkg/cluster/...): a controller-runtime Reconciler
// that classifies pod and cluster object changes into the pod lifecycle
// events the domain controller handles.
//
// The InnoDBCluster type below is a minimal, hand-written client.Object -
// bit-level CRD codegen (deepcopy-gen, conversion webhooks, OpenAPI schema)
// ships with the deployment tooling, so this repo does not generate or
// vendor one. It carries exactly the fields the reconciler round-trips.
package innodbcluster

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
)

// GroupVersion is this CRD's group/version, matching the api/innodbcluster
// package path.
var GroupVersion = schema.GroupVersion{Group: "mysql-operator.github.com", Version: "v1alpha1"}

// LabelCluster is set on every pod belonging to one InnoDBCluster, used both
// to list a cluster's pods and to derive its StatefulSet-ordinal index from
// the pod name.
const LabelCluster = "innodbcluster.mysql-operator.github.com/cluster"

// InnoDBCluster is the Go value this reconciler watches and patches. Spec is
// the user-declared desired state (v1alpha1.InnoDBClusterSpec verbatim);
// Status mirrors the subresource pkg/cluster/status.Publisher publishes to.
type InnoDBCluster struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   v1alpha1.InnoDBClusterSpec
	Status v1alpha1.ClusterStatus
}

// DeepCopyObject implements runtime.Object. Hand-written because this type
// isn't put through deepcopy-gen (see package doc); every field here is
// either a value type or a pointer to one, so copying each pointer's target,
// including those nested under InitDB, makes the copy exhaustive.
func (c *InnoDBCluster) DeepCopyObject() runtime.Object {
	if c == nil {
		return nil
	}
	out := *c
	out.ObjectMeta = *c.ObjectMeta.DeepCopy()
	if c.Spec.InitDB != nil {
		initDB := *c.Spec.InitDB
		if initDB.Clone != nil {
			clone := *initDB.Clone
			initDB.Clone = &clone
		}
		if initDB.Dump != nil {
			dump := *initDB.Dump
			if oci := dump.Storage.OCIObjectStorage; oci != nil {
				dump.Storage.OCIObjectStorage = &v1alpha1.OCIObjectStorageSpec{BucketName: oci.BucketName}
			}
			if pvc := dump.Storage.PersistentVolumeClaim; pvc != nil {
				dump.Storage.PersistentVolumeClaim = &v1alpha1.PVCStorageSpec{ClaimName: pvc.ClaimName}
			}
			initDB.Dump = &dump
		}
		out.Spec.InitDB = &initDB
	}
	if c.Status.CreateTime != nil {
		t := *c.Status.CreateTime
		out.Status.CreateTime = &t
	}
	return &out
}

// InnoDBClusterList backs List calls against the fake/real client.
type InnoDBClusterList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []InnoDBCluster
}

// DeepCopyObject implements runtime.Object.
func (l *InnoDBClusterList) DeepCopyObject() runtime.Object {
	if l == nil {
		return nil
	}
	out := *l
	out.Items = make([]InnoDBCluster, len(l.Items))
	for i := range l.Items {
		out.Items[i] = *l.Items[i].DeepCopyObject().(*InnoDBCluster)
	}
	return &out
}

// Key returns the v1alpha1.ClusterKey identifying this resource.
func (c *InnoDBCluster) Key() v1alpha1.ClusterKey {
	return v1alpha1.ClusterKey{Namespace: c.Namespace, Name: c.Name}
}
