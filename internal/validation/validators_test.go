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

package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/internal/validation"
	"github.com/mysql-operator/innodbcluster-operator/pkg/clustererr"
)

func TestValidateClusterSpec(t *testing.T) {
	cases := []struct {
		name    string
		spec    v1alpha1.InnoDBClusterSpec
		wantErr bool
	}{
		{"valid minimal", v1alpha1.InnoDBClusterSpec{Instances: 3}, false},
		{"zero instances", v1alpha1.InnoDBClusterSpec{Instances: 0}, true},
		{"too many instances", v1alpha1.InnoDBClusterSpec{Instances: 10}, true},
		{"negative router instances", v1alpha1.InnoDBClusterSpec{Instances: 3, Router: v1alpha1.RouterSpec{Instances: -1}}, true},
		{
			"conflicting init sources",
			v1alpha1.InnoDBClusterSpec{
				Instances: 3,
				InitDB: &v1alpha1.InitDBSpec{
					Clone: &v1alpha1.CloneSpec{URI: "mysql://donor"},
					Dump:  &v1alpha1.DumpSpec{},
				},
			},
			true,
		},
		{
			"valid clone source",
			v1alpha1.InnoDBClusterSpec{
				Instances: 3,
				InitDB:    &v1alpha1.InitDBSpec{Clone: &v1alpha1.CloneSpec{URI: "mysql://donor"}},
			},
			false,
		},
		{
			"dump with no storage named",
			v1alpha1.InnoDBClusterSpec{
				Instances: 3,
				InitDB:    &v1alpha1.InitDBSpec{Dump: &v1alpha1.DumpSpec{}},
			},
			true,
		},
		{
			"dump with both storage kinds named",
			v1alpha1.InnoDBClusterSpec{
				Instances: 3,
				InitDB: &v1alpha1.InitDBSpec{Dump: &v1alpha1.DumpSpec{Storage: v1alpha1.DumpStorageSpec{
					OCIObjectStorage:      &v1alpha1.OCIObjectStorageSpec{BucketName: "b"},
					PersistentVolumeClaim: &v1alpha1.PVCStorageSpec{ClaimName: "c"},
				}}},
			},
			true,
		},
		{
			"dump from OCI object storage is valid",
			v1alpha1.InnoDBClusterSpec{
				Instances: 3,
				InitDB: &v1alpha1.InitDBSpec{Dump: &v1alpha1.DumpSpec{Storage: v1alpha1.DumpStorageSpec{
					OCIObjectStorage: &v1alpha1.OCIObjectStorageSpec{BucketName: "b"},
				}}},
			},
			false,
		},
		{
			"dump from PVC is explicitly unimplemented",
			v1alpha1.InnoDBClusterSpec{
				Instances: 3,
				InitDB: &v1alpha1.InitDBSpec{Dump: &v1alpha1.DumpSpec{Storage: v1alpha1.DumpStorageSpec{
					PersistentVolumeClaim: &v1alpha1.PVCStorageSpec{ClaimName: "c"},
				}}},
			},
			true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validation.ValidateClusterSpec(tc.spec)
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			_, ok := clustererr.AsPermanent(err)
			assert.True(t, ok, "expected a Permanent error, got %T: %v", err, err)
		})
	}
}

func TestValidateResourceReference(t *testing.T) {
	assert.NoError(t, validation.ValidateResourceReference(v1alpha1.ClusterKey{Namespace: "ns", Name: "n"}))
	assert.Error(t, validation.ValidateResourceReference(v1alpha1.ClusterKey{Namespace: "", Name: "n"}))
	assert.Error(t, validation.ValidateResourceReference(v1alpha1.ClusterKey{Namespace: "ns", Name: ""}))
}
