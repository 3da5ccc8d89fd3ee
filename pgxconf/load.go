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
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pgexporter/pgexporter"
)

// document mirrors the on-disk YAML shape one-for-one; Configuration is
// the validated, typed object built from it. Keeping the two separate
// means a malformed document never produces a half-built
// Configuration.
type document struct {
	Host           string   `yaml:"host"`
	MetricsPort    int      `yaml:"metrics_port"`
	BridgePort     int      `yaml:"bridge_port"`
	ManagementPort int      `yaml:"management_port"`
	Compression    bool     `yaml:"compression"`
	WorkerPoolSize int      `yaml:"worker_pool_size"`
	CatalogPath    string   `yaml:"catalog_path"`
	UsersFile      string   `yaml:"users_file"`

	BlockingTimeoutMs int64 `yaml:"blocking_timeout_ms"`

	Cache struct {
		MaxSizeBytes int64 `yaml:"max_size_bytes"`
		MaxAgeMs     int64 `yaml:"max_age_ms"`
	} `yaml:"cache"`

	Bridge struct {
		Endpoints    []string `yaml:"endpoints"`
		MaxSizeBytes int64    `yaml:"max_size_bytes"`
		MaxAgeMs     int64    `yaml:"max_age_ms"`
	} `yaml:"bridge"`

	BridgeJSON struct {
		MaxSizeBytes int64 `yaml:"max_size_bytes"`
	} `yaml:"bridge_json"`

	MetricsTLS    tlsDoc `yaml:"metrics_tls"`
	BridgeTLS     tlsDoc `yaml:"bridge_tls"`
	ManagementTLS tlsDoc `yaml:"management_tls"`

	Servers []serverDoc `yaml:"servers"`
}

type tlsDoc struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`
}

type serverDoc struct {
	Name    string `yaml:"name"`
	Host    string `yaml:"host"`
	Port    uint16 `yaml:"port"`
	User    string `yaml:"user"`
	DataDir string `yaml:"data_dir"`
	WALDir  string `yaml:"wal_dir"`
	TLS     tlsDoc `yaml:"tls"`
}

// LoadFile reads and validates the configuration at path. Unknown
// top-level keys are fatal (spec.md §6), enforced via the decoder's
// KnownFields strictness rather than a hand-rolled key set.
func LoadFile(path string) (*Configuration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}
	return LoadBytes(data)
}

func LoadBytes(data []byte) (*Configuration, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var doc document
	if err := dec.Decode(&doc); err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}
	return build(doc)
}

func build(doc document) (*Configuration, error) {
	cfg := &Configuration{
		Host:                   doc.Host,
		MetricsPort:            doc.MetricsPort,
		BridgePort:             doc.BridgePort,
		ManagementPort:         doc.ManagementPort,
		Compression:            doc.Compression,
		WorkerPoolSize:         doc.WorkerPoolSize,
		CatalogPath:            doc.CatalogPath,
		UsersFilePath:          doc.UsersFile,
		BlockingTimeout:        time.Duration(doc.BlockingTimeoutMs) * time.Millisecond,
		CacheMaxSize:           doc.Cache.MaxSizeBytes,
		CacheMaxAge:            time.Duration(doc.Cache.MaxAgeMs) * time.Millisecond,
		BridgeEndpoints:        doc.Bridge.Endpoints,
		BridgeCacheMaxSize:     doc.Bridge.MaxSizeBytes,
		BridgeCacheMaxAge:      time.Duration(doc.Bridge.MaxAgeMs) * time.Millisecond,
		BridgeJSONCacheMaxSize: doc.BridgeJSON.MaxSizeBytes,
		MetricsTLS:             buildTLS(doc.MetricsTLS),
		BridgeTLS:              buildTLS(doc.BridgeTLS),
		ManagementTLS:          buildTLS(doc.ManagementTLS),
	}

	if cfg.Host == "" {
		return nil, configErr("host is required")
	}
	if cfg.MetricsPort <= 0 {
		return nil, configErr("metrics_port must be positive")
	}
	if cfg.CatalogPath == "" {
		return nil, configErr("catalog_path is required")
	}
	if cfg.WorkerPoolSize < 0 {
		return nil, configErr("worker_pool_size must not be negative")
	}

	seen := map[string]bool{}
	for _, sd := range doc.Servers {
		if sd.Name == "" {
			return nil, configErr("server entry missing name")
		}
		if sd.Name == pgexporter.ReservedServerName || sd.Name == pgexporter.ReservedAllName {
			return nil, configErr(fmt.Sprintf("server name %q is reserved", sd.Name))
		}
		if seen[sd.Name] {
			return nil, configErr(fmt.Sprintf("duplicate server name %q", sd.Name))
		}
		seen[sd.Name] = true
		if sd.Host == "" || sd.Port == 0 {
			return nil, configErr(fmt.Sprintf("server %q missing host/port", sd.Name))
		}
		cfg.Servers = append(cfg.Servers, pgexporter.ServerConfig{
			Name: sd.Name, Host: sd.Host, Port: sd.Port, User: sd.User,
			TLS: buildTLS(sd.TLS), DataDir: sd.DataDir, WALDir: sd.WALDir,
		})
	}

	return cfg, nil
}

func buildTLS(d tlsDoc) pgexporter.TLSConfig {
	return pgexporter.TLSConfig{Enabled: d.Enabled, CertFile: d.CertFile, KeyFile: d.KeyFile, CAFile: d.CAFile}
}

func configErr(msg string) error {
	return pgexporter.NewError(pgexporter.ConfigInvalid, "", "", fmt.Errorf(msg))
}
