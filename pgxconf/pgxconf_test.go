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

package pgxconf

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
host: localhost
metrics_port: 9187
catalog_path: /etc/pgexporter/catalog.yaml
servers:
  - name: main
    host: 127.0.0.1
    port: 5432
    user: pgexporter
`

func TestLoadBytesAcceptsMinimalValidDocument(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Host != "localhost" || cfg.MetricsPort != 9187 || len(cfg.Servers) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadBytesRejectsUnknownTopLevelKey(t *testing.T) {
	bad := minimalYAML + "\nbogus_key: true\n"
	if _, err := LoadBytes([]byte(bad)); err == nil {
		t.Fatal("expected an error for an unknown top-level key")
	}
}

func TestLoadBytesRejectsMissingHost(t *testing.T) {
	const doc = `
metrics_port: 9187
catalog_path: /etc/pgexporter/catalog.yaml
`
	if _, err := LoadBytes([]byte(doc)); err == nil {
		t.Fatal("expected an error for a missing host")
	}
}

func TestLoadBytesRejectsReservedServerName(t *testing.T) {
	const doc = `
host: localhost
metrics_port: 9187
catalog_path: /etc/pgexporter/catalog.yaml
servers:
  - name: all
    host: 127.0.0.1
    port: 5432
`
	if _, err := LoadBytes([]byte(doc)); err == nil {
		t.Fatal("expected an error for the reserved server name \"all\"")
	}
}

func TestLoadBytesRejectsDuplicateServerNames(t *testing.T) {
	const doc = `
host: localhost
metrics_port: 9187
catalog_path: /etc/pgexporter/catalog.yaml
servers:
  - name: dup
    host: 127.0.0.1
    port: 5432
  - name: dup
    host: 127.0.0.1
    port: 5433
`
	if _, err := LoadBytes([]byte(doc)); err == nil {
		t.Fatal("expected an error for a duplicate server name")
	}
}

func TestRestartRequiredNamesPortsAndTLSAndWorkerPool(t *testing.T) {
	for _, k := range []string{"metrics_port", "worker_pool_size", "metrics_tls", "catalog_path"} {
		if !RestartRequired(k) {
			t.Errorf("expected %q to require a restart", k)
		}
	}
	for _, k := range []string{"compression", "cache_max_size_bytes", "blocking_timeout_ms"} {
		if RestartRequired(k) {
			t.Errorf("expected %q to be hot-reloadable", k)
		}
	}
}

func writeTempConfig(t *testing.T, body string) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgexporter.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestStoreSetRejectsRestartRequiredKey(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore("", cfg)
	restart, err := s.Set("metrics_port", "9999")
	if err != nil {
		t.Fatal(err)
	}
	if !restart {
		t.Fatal("expected metrics_port to report restartRequired=true")
	}
	if got, _ := s.Get("metrics_port"); got != "9187" {
		t.Fatalf("expected the value to stay unchanged, got %q", got)
	}
}

func TestStoreSetAppliesHotReloadableKey(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore("", cfg)
	restart, err := s.Set("compression", "true")
	if err != nil {
		t.Fatal(err)
	}
	if restart {
		t.Fatal("compression must not require a restart")
	}
	if got, _ := s.Get("compression"); got != "true" {
		t.Fatalf("got %q, want true", got)
	}
}

func TestStoreListReturnsEveryScalarKey(t *testing.T) {
	cfg, err := LoadBytes([]byte(minimalYAML))
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore("", cfg)
	list := s.List()
	for _, k := range []string{"host", "metrics_port", "compression", "worker_pool_size"} {
		if _, ok := list[k]; !ok {
			t.Errorf("expected List() to include %q", k)
		}
	}
}

func TestStoreReloadRejectsRestartRequiringDiff(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, cfg)

	const changedDoc = `
host: localhost
metrics_port: 9999
catalog_path: /etc/pgexporter/catalog.yaml
servers:
  - name: main
    host: 127.0.0.1
    port: 5432
    user: pgexporter
`
	if err := os.WriteFile(path, []byte(changedDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err == nil {
		t.Fatal("expected Reload to reject a metrics_port change")
	}
}

func TestStoreReloadAppliesNonRestartDiff(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, cfg)

	const changedDoc = `
host: localhost
metrics_port: 9187
catalog_path: /etc/pgexporter/catalog.yaml
blocking_timeout_ms: 5000
servers:
  - name: main
    host: 127.0.0.1
    port: 5432
    user: pgexporter
`
	if err := os.WriteFile(path, []byte(changedDoc), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("expected a non-restart-required diff to reload cleanly, got %v", err)
	}
	if got, _ := s.Get("blocking_timeout_ms"); got != "5000" {
		t.Fatalf("got %q, want 5000", got)
	}
}

func TestEncryptPasswordRoundTripsThroughLoadUsers(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	encoded, err := EncryptPassword(key, "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	body := "users:\n  - username: alice\n    password: \"" + encoded + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	creds, err := LoadUsers(path, key)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := creds["alice"]
	if !ok || got.Password != "s3cret" {
		t.Fatalf("unexpected credentials: %+v (ok=%v)", got, ok)
	}
}

func TestLoadUsersRejectsWrongMasterKey(t *testing.T) {
	key := make([]byte, 32)
	wrongKey := make([]byte, 32)
	wrongKey[0] = 1
	encoded, err := EncryptPassword(key, "s3cret")
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "users.yaml")
	body := "users:\n  - username: alice\n    password: \"" + encoded + "\"\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadUsers(path, wrongKey); err == nil {
		t.Fatal("expected decryption under the wrong master key to fail")
	}
}
