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

// Package sqlsession wraps the raw SQL session the member probe needs:
// server identity, GTID reads, and the two bare SQL statements the
// reconciler issues directly (STOP GROUP_REPLICATION, SHOW GRANTS). This is
// deliberately separate from pkg/cluster/mysqladmin, which models the
// higher-level mysqlsh AdminAPI calls (createCluster, addInstance, ...).
package sqlsession

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	// Registers the "mysql" driver name with database/sql.
	_ "github.com/go-sql-driver/mysql"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/errcode"
)

// ServerIdentity is the auxiliary identity read logged by the Member Probe.
type ServerIdentity struct {
	ServerID   uint64
	ServerUUID string
	ReportHost string
}

// MemberRow is one row of this instance's local view of the group, as seen
// in its own performance_schema.replication_group_members table. Every
// configured member appears here regardless of reachability; an
// unreachable peer simply carries MEMBER_STATE "UNREACHABLE".
type MemberRow struct {
	MemberID string
	Role     string
	State    string
}

// GroupStatus is this instance's local view of Group Replication: its own
// member entry plus the full membership table it currently observes. This
// is the member probe's primary data source - member and reachable-member
// counts are derived by the caller by counting Members.
type GroupStatus struct {
	SelfMemberID string
	SelfRole     string
	SelfState    string
	ViewID       string
	Version      string
	Members      []MemberRow
}

// Session is the raw SQL surface the core needs against a single MySQL pod.
type Session interface {
	// Identity reads @@server_id, @@server_uuid, @@report_host.
	Identity(ctx context.Context) (ServerIdentity, error)
	// GTIDExecuted reads @@global.gtid_executed and @@global.gtid_purged.
	// This read may legitimately fail (e.g. during recovery); callers
	// treat a non-nil error as "unknown", not fatal.
	GTIDExecuted(ctx context.Context) (executed *string, purged *string, err error)
	// GroupStatus reads this instance's local Group Replication view from
	// performance_schema.
	GroupStatus(ctx context.Context) (GroupStatus, error)
	// StopGroupReplication issues STOP GROUP_REPLICATION.
	StopGroupReplication(ctx context.Context) error
	// GrantsExist reports whether a routing/backup account already has
	// grants, classifying ER_NONEXISTING_GRANT as "does not exist" rather
	// than an error.
	GrantsExist(ctx context.Context, user string) (bool, error)
	Close() error
}

type dbSession struct {
	db *sqlx.DB
}

// Open dials a MySQL pod over the given DSN (the endpoint connect options
// translated by the caller into a driver DSN).
func Open(ctx context.Context, dsn string) (Session, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlsession: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlsession: ping: %w", err)
	}
	return &dbSession{db: db}, nil
}

// New wraps an already-open *sqlx.DB (used by tests with go-sqlmock).
func New(db *sqlx.DB) Session {
	return &dbSession{db: db}
}

func (s *dbSession) Identity(ctx context.Context) (ServerIdentity, error) {
	var id ServerIdentity
	row := s.db.QueryRowxContext(ctx, "select @@server_id, @@server_uuid, @@report_host")
	if err := row.Scan(&id.ServerID, &id.ServerUUID, &id.ReportHost); err != nil {
		return ServerIdentity{}, errcode.FromMySQLError(err)
	}
	return id, nil
}

func (s *dbSession) GTIDExecuted(ctx context.Context) (*string, *string, error) {
	var executed, purged sql.NullString
	row := s.db.QueryRowxContext(ctx, "select @@global.gtid_executed, @@global.gtid_purged")
	if err := row.Scan(&executed, &purged); err != nil {
		return nil, nil, errcode.FromMySQLError(err)
	}
	return nullableString(executed), nullableString(purged), nil
}

func nullableString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func (s *dbSession) GroupStatus(ctx context.Context) (GroupStatus, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT MEMBER_ID, MEMBER_ROLE, MEMBER_STATE
		FROM performance_schema.replication_group_members`)
	if err != nil {
		return GroupStatus{}, errcode.FromMySQLError(err)
	}
	defer rows.Close()

	var members []MemberRow
	for rows.Next() {
		var r MemberRow
		if err := rows.Scan(&r.MemberID, &r.Role, &r.State); err != nil {
			return GroupStatus{}, errcode.FromMySQLError(err)
		}
		members = append(members, r)
	}
	if err := rows.Err(); err != nil {
		return GroupStatus{}, errcode.FromMySQLError(err)
	}

	var selfID, viewID, version sql.NullString
	row := s.db.QueryRowxContext(ctx, `
		SELECT s.MEMBER_ID, s.VIEW_ID, @@version
		FROM performance_schema.replication_group_member_stats s
		WHERE s.MEMBER_ID = @@server_uuid`)
	if err := row.Scan(&selfID, &viewID, &version); err != nil {
		return GroupStatus{}, errcode.FromMySQLError(err)
	}

	gs := GroupStatus{
		Members: members,
		ViewID:  nullableStringOrEmpty(viewID),
		Version: nullableStringOrEmpty(version),
	}
	for _, m := range members {
		if selfID.Valid && m.MemberID == selfID.String {
			gs.SelfMemberID = m.MemberID
			gs.SelfRole = m.Role
			gs.SelfState = m.State
		}
	}
	return gs, nil
}

func nullableStringOrEmpty(v sql.NullString) string {
	if !v.Valid {
		return ""
	}
	return v.String
}

func (s *dbSession) StopGroupReplication(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "STOP GROUP_REPLICATION"); err != nil {
		return errcode.FromMySQLError(err)
	}
	return nil
}

func (s *dbSession) GrantsExist(ctx context.Context, user string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, "SHOW GRANTS FOR ?@'%'", user)
	if err != nil {
		ae := errcode.FromMySQLError(err)
		if ae.Code == errcode.NonExistingGrant {
			return false, nil
		}
		return false, ae
	}
	defer rows.Close()
	return true, nil
}

func (s *dbSession) Close() error {
	return s.db.Close()
}
