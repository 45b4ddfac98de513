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

// Package validation structurally validates an InnoDBClusterSpec before a
// create/reconcile cycle is attempted: catching an impossible spec (zero
// instances, conflicting init sources, a negative router size) with a
// clustererr.Permanent up front, rather than discovering it deep inside
// ClusterController.CreateCluster.
package validation

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
)

// clusterSpecView is the validator-tagged shape ValidateClusterSpec checks
// v1alpha1.InnoDBClusterSpec against. It's kept separate from the domain
// type so the API package stays free of a third-party struct-tag
// dependency - only this package needs to know go-playground/validator
// exists.
type clusterSpecView struct {
	Instances      int32 `validate:"required,min=1,max=9"`
	RouterInstance int32 `validate:"min=0,max=9"`
}

var validate = validator.New()

// ValidateClusterSpec checks structural invariants go-playground/validator
// can express directly (instance bounds), then a couple of cross-field rules
// it can't (conflicting init sources) by hand. Any violation comes back as a
// clustererr.Permanent: none of these are recoverable by retrying.
func ValidateClusterSpec(spec v1alpha1.InnoDBClusterSpec) error {
	view := clusterSpecView{Instances: spec.Instances, RouterInstance: spec.Router.Instances}
	if err := validate.Struct(view); err != nil {
		return clustererr.WrapPermanent(err, "invalid InnoDBCluster spec")
	}
	if spec.InitDB != nil && spec.InitDB.Clone != nil && spec.InitDB.Dump != nil {
		return clustererr.NewPermanent("invalid InnoDBCluster spec: initDB.clone and initDB.dump are mutually exclusive")
	}
	if spec.InitDB != nil && spec.InitDB.Dump != nil {
		storage := spec.InitDB.Dump.Storage
		if storage.OCIObjectStorage != nil && storage.PersistentVolumeClaim != nil {
			return clustererr.NewPermanent("invalid InnoDBCluster spec: initDB.dump.storage.ociObjectStorage and .persistentVolumeClaim are mutually exclusive")
		}
		if storage.OCIObjectStorage == nil && storage.PersistentVolumeClaim == nil {
			return clustererr.NewPermanent("invalid InnoDBCluster spec: initDB.dump.storage must name exactly one source")
		}
		if storage.PersistentVolumeClaim != nil {
			// PVC-backed dump restore is refused explicitly until its
			// restore path is actually built.
			return clustererr.NewPermanent("invalid InnoDBCluster spec: initDB.dump.storage.persistentVolumeClaim is not implemented")
		}
	}
	return nil
}

// ValidateResourceReference checks the (namespace, name) pair this repo
// uses to key every cluster and pod lookup is well-formed, catching an
// empty field before it turns into a confusing downstream lookup miss.
func ValidateResourceReference(key v1alpha1.ClusterKey) error {
	if key.Namespace == "" {
		return fmt.Errorf("resource reference: namespace must not be empty")
	}
	if key.Name == "" {
		return fmt.Errorf("resource reference: name must not be empty")
	}
	return nil
}
