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

import "sigs.k8s.io/controller-runtime/pkg/scheme"

// SchemeBuilder registers InnoDBCluster/InnoDBClusterList with a manager's
// runtime.Scheme, the hand-written counterpart of a kubebuilder-generated
// groupversion_info.go (see the package doc in types.go for why this isn't
// generated).
var SchemeBuilder = &scheme.Builder{GroupVersion: GroupVersion}

// AddToScheme adds the types in this package to a scheme.
var AddToScheme = SchemeBuilder.AddToScheme

func init() {
	SchemeBuilder.Register(&InnoDBCluster{}, &InnoDBClusterList{})
}
