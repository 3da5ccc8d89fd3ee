/*
 * Copyright 2025 The pgexporter Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package collector

import (
	"strconv"
	"time"

	"github.com/pgexporter/pgexporter"
	"github.com/pgexporter/pgexporter/wire"
)

// Probe issues "SHOW server_version_num" and "SELECT pg_is_in_recovery()"
// on conn and stores the results in state (spec.md §4.1). It is called
// whenever a scrape reaches a server whose ServerState.Version() is
// still UndeterminedVersion; once a probe succeeds, later connections
// to that server are not probed again.
func Probe(conn *wire.Conn, state *pgexporter.ServerState, timeout time.Duration) error {
	version, err := probeVersion(conn, timeout)
	if err != nil {
		return err
	}
	role, err := probeRole(conn, timeout)
	if err != nil {
		return err
	}
	state.SetVersion(int64(version))
	state.SetRole(role)
	return nil
}

func probeVersion(conn *wire.Conn, timeout time.Duration) (int, error) {
	rows, err := conn.Query("SHOW server_version_num", timeout)
	if err != nil {
		return 0, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	vals := rows.Values()
	numStr := vals[0].AsLabelValue()
	for rows.Next() {
	}
	n, err := strconv.Atoi(numStr)
	if err != nil {
		return 0, err
	}
	// 160001 -> 16 (major version), per server_version_num's MMNNPP format.
	return n / 10000, nil
}

func probeRole(conn *wire.Conn, timeout time.Duration) (pgexporter.Role, error) {
	rows, err := conn.Query("SELECT pg_is_in_recovery()", timeout)
	if err != nil {
		return pgexporter.RoleUnknown, err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return pgexporter.RoleUnknown, err
		}
		return pgexporter.RolePrimary, nil
	}
	inRecovery := rows.Values()[0].AsFloat() == 1
	for rows.Next() {
	}
	if inRecovery {
		return pgexporter.RoleReplica, nil
	}
	return pgexporter.RolePrimary, nil
}
