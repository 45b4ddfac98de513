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

// Package httpapi exposes a read-only debug HTTP surface over the status
// publisher's cached diagnoses: a human operator convenience, never a path
// that can trigger a reconciliation action.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/diagnose"
)

// Snapshotter is implemented by pkg/cluster/status.Publisher.
type Snapshotter interface {
	Snapshot(key v1alpha1.ClusterKey) (diagnose.ClusterStatusReport, bool)
	SnapshotAll() map[string]diagnose.ClusterStatusReport
}

// clusterView is the wire shape returned by the API - a trimmed, JSON-
// friendly projection of diagnose.ClusterStatusReport, never the full probe
// detail (which carries a raw mysqladmin session-shaped GTID string an
// operator dashboard has no use for beyond the summary).
type clusterView struct {
	Status          v1alpha1.ClusterDiagStatus `json:"status"`
	OnlineInstances int                        `json:"onlineInstances"`
	Primary         string                     `json:"primary,omitempty"`
	DiagnosisID     string                     `json:"diagnosisId"`
	DiagnosedAt     string                     `json:"diagnosedAt"`
}

func toView(report diagnose.ClusterStatusReport) clusterView {
	v := clusterView{
		Status:          report.Status,
		OnlineInstances: len(report.OnlineMembers),
		DiagnosisID:     report.DiagnosisID,
		DiagnosedAt:     report.DiagnosedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if report.Primary != nil {
		v.Primary = report.Primary.Name
	}
	return v
}

// NewRouter builds the chi.Router serving GET /clusters and
// GET /clusters/{namespace}/{name}, with CORS enabled so a browser-based
// status page (a plain static page, not part of this repo) can call it
// cross-origin.
func NewRouter(snap Snapshotter) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/clusters", func(w http.ResponseWriter, r *http.Request) {
		all := snap.SnapshotAll()
		out := make(map[string]clusterView, len(all))
		for k, report := range all {
			out[k] = toView(report)
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/clusters/{namespace}/{name}", func(w http.ResponseWriter, r *http.Request) {
		key := v1alpha1.ClusterKey{Namespace: chi.URLParam(r, "namespace"), Name: chi.URLParam(r, "name")}
		report, ok := snap.Snapshot(key)
		if !ok {
			http.Error(w, "no diagnosis cached for "+key.String(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, toView(report))
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
