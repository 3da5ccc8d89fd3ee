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

package mgmt

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/pgexporter/pgexporter/cache"
	"github.com/pgexporter/pgexporter/pgxlog"
)

// ConfigStore is the subset of pgxconf's reloadable configuration the
// management surface needs. Defined here, rather than imported from
// pgxconf directly, so mgmt has no dependency on that package's YAML
// loading machinery — only cmd/pgexporter wires the concrete type in.
type ConfigStore interface {
	Get(key string) (string, bool)
	Set(key, value string) (restartRequired bool, err error)
	List() map[string]string
	Reload() error
}

// StatusInfo is the snapshot "status"/"status details" returns.
type StatusInfo struct {
	Servers []ServerStatus `json:"servers"`
}

type ServerStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Version int64  `json:"version,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Server dispatches management requests read off one connection at a
// time; each accepted connection runs its own short-lived task, per
// spec.md §5.
type Server struct {
	Listener net.Listener
	Conf     ConfigStore
	Cache    *cache.Cache // the /metrics cache; "clear prometheus" empties it
	Status   func() StatusInfo
	Shutdown func()

	Log *pgxlog.Logger
}

// Serve accepts connections until ctx is cancelled or the listener
// errors.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Listener.Close()
	}()
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	req, err := ReadRequest(r)
	if err != nil {
		return
	}
	resp := s.dispatch(req)
	_ = WriteResponse(conn, resp)
}

func (s *Server) dispatch(req Request) Response {
	reqID := uuid.New().String()
	start := time.Now()

	switch req.Command {
	case "ping":
		return ok(start, nil)
	case "shutdown":
		if s.Shutdown != nil {
			go s.Shutdown()
		}
		return ok(start, nil)
	case "status":
		return s.handleStatus(start, req.Subcommand == "details")
	case "conf":
		return s.handleConf(start, req)
	case "clear":
		return s.handleClear(start, req, reqID)
	default:
		return failed(start, CodeUnknownCommand, fmt.Sprintf("unknown command %q", req.Command))
	}
}

func (s *Server) handleStatus(start time.Time, details bool) Response {
	if s.Status == nil {
		return failed(start, CodeStatusUnavailable, "status unavailable")
	}
	info := s.Status()
	if details && s.Cache != nil {
		type detailed struct {
			StatusInfo
			CacheEntries int    `json:"cache_entries"`
			CacheSize    string `json:"cache_size_note"`
		}
		d := detailed{StatusInfo: info, CacheEntries: s.Cache.Len(), CacheSize: humanize.Bytes(uint64(s.Cache.Len()))}
		return okPayload(start, d)
	}
	return okPayload(start, info)
}

func (s *Server) handleConf(start time.Time, req Request) Response {
	if s.Conf == nil {
		return failed(start, CodeConfGetFailed, "configuration unavailable")
	}
	switch req.Subcommand {
	case "reload":
		if err := s.Conf.Reload(); err != nil {
			return failed(start, CodeConfReloadInvalid, err.Error())
		}
		return ok(start, nil)
	case "ls":
		return okPayload(start, s.Conf.List())
	case "get":
		key := argString(req.Args, "key")
		if key == "" {
			return okPayload(start, s.Conf.List())
		}
		v, found := s.Conf.Get(key)
		if !found {
			return failed(start, CodeConfGetUnknownKey, fmt.Sprintf("unknown key %q", key))
		}
		return okPayload(start, map[string]string{key: v})
	case "set":
		key := argString(req.Args, "key")
		value := argString(req.Args, "value")
		restart, err := s.Conf.Set(key, value)
		if err != nil {
			return failed(start, CodeConfSetInvalidValue, err.Error())
		}
		if restart {
			return failed(start, CodeConfSetRestartNeeded, "restart required for this key")
		}
		return ok(start, nil)
	default:
		return failed(start, CodeUnknownSubcommand, fmt.Sprintf("unknown conf subcommand %q", req.Subcommand))
	}
}

func (s *Server) handleClear(start time.Time, req Request, reqID string) Response {
	if req.Subcommand != "prometheus" {
		return failed(start, CodeUnknownSubcommand, fmt.Sprintf("unknown clear subcommand %q", req.Subcommand))
	}
	if s.Cache != nil {
		s.Cache.Clear()
	}
	if s.Log != nil {
		s.Log.Info("cache cleared by management request %s", reqID)
	}
	return ok(start, nil)
}

func argString(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	return m[key]
}

func ok(start time.Time, payload interface{}) Response {
	return okPayload(start, payload)
}

func okPayload(start time.Time, payload interface{}) Response {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err == nil {
			raw = b
		}
	}
	return Response{
		Outcome:  Outcome{Status: "ok", ElapsedMs: time.Since(start).Milliseconds()},
		Response: raw,
	}
}

func failed(start time.Time, code int, message string) Response {
	return Response{
		Outcome: Outcome{Status: "error", ElapsedMs: time.Since(start).Milliseconds(), Code: code, Message: message},
	}
}
