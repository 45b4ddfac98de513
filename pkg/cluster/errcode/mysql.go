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

package errcode

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// Native MySQL server error numbers for the two server-error codes. The
// SHERR_DBA_* codes are admin-client (mysqlsh) codes, not server error
// numbers, and are produced directly by the mysqladmin collaborator rather
// than parsed out of a driver error.
const (
	erOptionPreventsStatement = 1290
	erNonExistingGrant        = 1141
)

// FromMySQLError classifies a raw error returned by the SQL driver into an
// AdminError. Non-MySQL errors (timeouts, connection refused, context
// cancellation) are classified Other so the caller's retry policy can still
// treat them as transient.
func FromMySQLError(err error) *AdminError {
	if err == nil {
		return nil
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case erOptionPreventsStatement:
			return Wrap(err, OptionPreventsStatement, me.Message)
		case erNonExistingGrant:
			return Wrap(err, NonExistingGrant, me.Message)
		default:
			return OtherWithRaw(me.Error(), err)
		}
	}
	return OtherWithRaw(err.Error(), err)
}
