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

// Command mysql-operator-controller starts the InnoDB Cluster reconciler
// as a controller-runtime manager process: one watch loop over
// InnoDBCluster and its owned Pods, dispatched into the reconciliation
// core under pkg/cluster.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/leaderelection/resourcelock"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
	"github.com/mysql-operator/innodbcluster-operator/internal/config"
	innodbclusterctrl "github.com/mysql-operator/innodbcluster-operator/internal/controller/innodbcluster"
	"github.com/mysql-operator/innodbcluster-operator/internal/obslog"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/controller"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/metrics"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mutex"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/mysqladmin"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/notify"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/retry"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/sqlsession"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/status"
	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/tracing"
	"github.com/mysql-operator/innodbcluster-operator/pkg/httpapi"
	"github.com/mysql-operator/innodbcluster-operator/pkg/k8sobj"
)

var scheme = runtime.NewScheme()

func init() {
	localSchemeBuilder := runtime.NewSchemeBuilder(
		clientgoscheme.AddToScheme,
		innodbclusterctrl.AddToScheme,
	)
	utilruntime.Must(localSchemeBuilder.AddToScheme(scheme))
}

func main() {
	var (
		metricsAddr          string
		healthAddr           string
		debugAPIAddr         string
		slackWebhookURL      string
		development          bool
		enableLeaderElection bool
	)
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8443", "address the Prometheus metrics endpoint binds to")
	flag.StringVar(&healthAddr, "health-bind-address", ":8081", "address the /healthz and /readyz endpoints bind to")
	flag.StringVar(&debugAPIAddr, "debug-api-bind-address", ":8090", "address the read-only cluster-status HTTP API binds to")
	flag.StringVar(&slackWebhookURL, "slack-webhook-url", os.Getenv("MYSQL_OPERATOR_SLACK_WEBHOOK_URL"), "Slack incoming webhook URL for cluster-status alerts; empty disables alerting")
	flag.BoolVar(&development, "development", false, "use a human-readable development logger instead of the production JSON one")
	flag.BoolVar(&enableLeaderElection, "leader-elect", true, "enable leader election so only one replica reconciles at a time")
	flag.Parse()

	log := obslog.New(development)
	ctrl.SetLogger(log)

	if err := run(log, metricsAddr, healthAddr, debugAPIAddr, slackWebhookURL, enableLeaderElection); err != nil {
		log.Error(err, "mysql-operator-controller exited with an error")
		os.Exit(1)
	}
}

func run(log logr.Logger, metricsAddr, healthAddr, debugAPIAddr, slackWebhookURL string, enableLeaderElection bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tp, err := tracing.NewProvider(os.Stdout)
	if err != nil {
		return fmt.Errorf("build tracer provider: %w", err)
	}
	otel.SetTracerProvider(tp)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	restConf := ctrl.GetConfigOrDie()
	mgr, err := ctrl.NewManager(restConf, ctrl.Options{
		Scheme:                     scheme,
		Metrics:                    metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress:     healthAddr,
		LeaderElection:             enableLeaderElection,
		LeaderElectionID:           "mysql-operator-controller-leader-election",
		LeaderElectionResourceLock: resourcelock.LeasesResourceLock,
		Logger:                     log,
	})
	if err != nil {
		return fmt.Errorf("create manager: %w", err)
	}

	if err := mgr.AddHealthzCheck("healthz", healthzPing); err != nil {
		return fmt.Errorf("add healthz check: %w", err)
	}
	if err := mgr.AddReadyzCheck("readyz", healthzPing); err != nil {
		return fmt.Errorf("add readyz check: %w", err)
	}

	mgrClient := mgr.GetClient()
	k8s := k8sobj.New(mgrClient, mgr.GetEventRecorderFor("innodbcluster-operator"))
	wireClusterStatusBackend()

	recorder := metrics.NewRecorder()
	slackNotifier := notify.NewSlack(slackWebhookURL)
	publisher := status.NewPublisher(k8s, slackNotifier, recorder, log.WithName("status"))
	status.SetClusterObjectLookup(func(ctx context.Context, key v1alpha1.ClusterKey) (client.Object, error) {
		var c innodbclusterctrl.InnoDBCluster
		if err := mgrClient.Get(ctx, client.ObjectKey{Namespace: key.Namespace, Name: key.Name}, &c); err != nil {
			return nil, err
		}
		return &c, nil
	})

	if err := (&innodbclusterctrl.Reconciler{
		Client:           mgrClient,
		Log:              log.WithName("innodbcluster"),
		Scheme:           mgr.GetScheme(),
		Admin:            mysqladmin.Unconfigured(),
		K8s:              k8s,
		Router:           k8sobj.NewDeploymentRouterSizer(mgrClient),
		Dial:             dialPod,
		Status:           publisher,
		Mutex:            mutex.NewRegistry(),
		RetrySettings:    retry.Settings{MaxAttempts: cfg.RetryMaxAttempts, BreakerOpenDelay: cfg.BreakerOpenDelay},
		RouterAccount:    controller.Account{User: "mysqlrouter"},
		BackupAccount:    controller.Account{User: "backup"},
		IPAllowlistExtra: cfg.IPAllowlistExtra,
		ProbeTimeout:     cfg.ProbeTimeout,
	}).SetupWithManager(mgr); err != nil {
		return fmt.Errorf("register innodbcluster reconciler: %w", err)
	}

	go serveDebugAPI(log, debugAPIAddr, publisher)

	log.Info("starting manager")
	return mgr.Start(ctrl.SetupSignalHandler())
}

func healthzPing(_ *http.Request) error { return nil }

// wireClusterStatusBackend installs the real CRD status-subresource
// round trip (the production counterpart of the in-memory backend every
// _test.go in this repo installs): get/patch the InnoDBCluster object's
// Status field directly, since this repo hand-writes its own client.Object
// rather than depending on generated clientset/status-subresource code.
func wireClusterStatusBackend() {
	k8sobj.SetClusterStatusBackend(
		func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey) (*v1alpha1.ClusterStatus, error) {
			var obj innodbclusterctrl.InnoDBCluster
			if err := c.Get(ctx, client.ObjectKey{Namespace: key.Namespace, Name: key.Name}, &obj); err != nil {
				if apierrors.IsNotFound(err) {
					return &v1alpha1.ClusterStatus{}, nil
				}
				return nil, err
			}
			st := obj.Status
			return &st, nil
		},
		func(ctx context.Context, c client.Client, key v1alpha1.ClusterKey, status *v1alpha1.ClusterStatus) error {
			var obj innodbclusterctrl.InnoDBCluster
			if err := c.Get(ctx, client.ObjectKey{Namespace: key.Namespace, Name: key.Name}, &obj); err != nil {
				return err
			}
			obj.Status = *status
			return c.Status().Update(ctx, &obj)
		},
	)
}

// serveDebugAPI runs the read-only cluster-status HTTP surface
// (pkg/httpapi) and the Prometheus /metrics endpoint on a dedicated
// listener, independent of the manager's own metrics server, so a
// debug-only surface outage never affects reconciliation or leader
// election.
func serveDebugAPI(log logr.Logger, addr string, publisher *status.Publisher) {
	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewRouter(publisher))
	mux.Handle("/metrics", promhttp.Handler())
	log.Info("serving debug API", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		log.Error(err, "debug API server exited")
	}
}

// dialPod opens a raw SQL session against a pod, the diagnose.PodDialer this
// reconciler wires for member probing. The admin user/password/TLS mode
// travel in pod.EndpointCO.Options since EndpointConnectOptions is an
// opaque passthrough value as far as the reconciliation core is concerned
// (api/innodbcluster/v1alpha1's own doc comment on that type).
func dialPod(ctx context.Context, pod v1alpha1.MySQLPod) (sqlsession.Session, error) {
	return sqlsession.Open(ctx, dialDSN(pod))
}

func dialDSN(pod v1alpha1.MySQLPod) string {
	user := pod.EndpointCO.Options["user"]
	if user == "" {
		user = "root"
	}
	password := pod.EndpointCO.Options["password"]
	tlsParam := ""
	if pod.EndpointCO.Options["tls"] == "true" {
		tlsParam = "?tls=preferred"
	}
	endpoint := pod.EndpointCO.Endpoint
	if endpoint == "" {
		endpoint = pod.Endpoint
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s", user, password, endpoint, tlsParam)
}
