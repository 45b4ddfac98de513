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

// Package notify is the Slack alerting sink the status publisher calls for
// the cluster-status transitions that warrant paging a human, beyond the
// Kubernetes event it always posts.
package notify

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"

	"github.com/mysql-operator/innodbcluster-operator/api/innodbcluster/v1alpha1"
)

// Slack posts to a Slack incoming webhook. The zero value (empty
// WebhookURL) is a valid, inert Notifier: Notify becomes a no-op, matching
// the "no-op if unconfigured" requirement rather than erroring out when an
// operator hasn't set one up.
type Slack struct {
	WebhookURL string
}

// NewSlack builds a Slack notifier for the given incoming-webhook URL.
func NewSlack(webhookURL string) *Slack {
	return &Slack{WebhookURL: webhookURL}
}

// Notify posts a one-line alert describing the cluster's new status.
func (s *Slack) Notify(ctx context.Context, key v1alpha1.ClusterKey, status v1alpha1.ClusterDiagStatus, onlineInstances int) error {
	if s == nil || s.WebhookURL == "" {
		return nil
	}
	text := fmt.Sprintf(":rotating_light: InnoDB Cluster %s is now %s (%d instance(s) online)", key.String(), status, onlineInstances)
	return slack.PostWebhookContext(ctx, s.WebhookURL, &slack.WebhookMessage{Text: text})
}
