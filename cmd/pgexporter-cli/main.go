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

// Command pgexporter-cli is a thin client for the management protocol
// (spec.md §4.8/§6): it dials the management port, sends one envelope,
// prints the response, and exits with the code spec.md §4.8 specifies.
// Flag parsing follows the same getopt idiom as cmd/pgexporter, grounded
// on rapidloop-pgmetrics/cmd/pgmetrics/main.go.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/howeyc/gopass"
	"golang.org/x/term"

	"github.com/pgexporter/pgexporter/mgmt"
	"github.com/pgexporter/pgexporter/pgxconf"
)

var version string // set during build

func main() {
	var o options
	o.defaults()
	args := o.parse()

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "pgexporter-cli: missing command")
		printTry()
		os.Exit(mgmt.ExitError)
	}

	if args[0] == "encrypt-password" {
		encryptPasswordCmd(o)
		return
	}

	req := mgmt.Request{
		Command:     args[0],
		TimestampMs: time.Now().UnixMilli(),
	}
	if len(args) > 1 {
		req.Subcommand = args[1]
	}
	if len(args) > 2 {
		req.Args = buildArgs(args[2:])
	}

	resp, err := roundTrip(o, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgexporter-cli: %v\n", err)
		os.Exit(mgmt.ExitTransportError)
	}

	if resp.Outcome.Status != "ok" {
		fmt.Fprintf(os.Stderr, "error %d: %s\n", resp.Outcome.Code, resp.Outcome.Message)
		os.Exit(mgmt.ExitError)
	}
	if len(resp.Response) > 0 {
		var pretty interface{}
		if err := json.Unmarshal(resp.Response, &pretty); err == nil {
			b, _ := json.MarshalIndent(pretty, "", "  ")
			fmt.Println(string(b))
		}
	}
	os.Exit(mgmt.ExitSuccess)
}

func roundTrip(o options, req mgmt.Request) (mgmt.Response, error) {
	addr := fmt.Sprintf("%s:%d", o.host, o.port)
	conn, err := net.DialTimeout("tcp", addr, o.timeout)
	if err != nil {
		return mgmt.Response{}, err
	}
	defer conn.Close()

	if err := mgmt.WriteRequest(conn, req); err != nil {
		return mgmt.Response{}, err
	}
	return mgmt.ReadResponse(bufio.NewReader(conn))
}

// buildArgs turns "key=value" pairs on the command line into the JSON
// args object conf get/set expect.
func buildArgs(pairs []string) json.RawMessage {
	m := map[string]string{}
	for _, p := range pairs {
		for i := 0; i < len(p); i++ {
			if p[i] == '=' {
				m[p[:i]] = p[i+1:]
				break
			}
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

// encryptPasswordCmd prompts for a plaintext password, hiding input
// when stdin is a terminal, and prints its AES-256-GCM-encrypted
// users-file form for an operator to paste into the YAML users file.
func encryptPasswordCmd(o options) {
	if o.masterKeyFile == "" {
		fmt.Fprintln(os.Stderr, "pgexporter-cli: encrypt-password requires --master-key")
		os.Exit(mgmt.ExitError)
	}
	key, err := os.ReadFile(o.masterKeyFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgexporter-cli: reading master key: %v\n", err)
		os.Exit(mgmt.ExitError)
	}
	if len(key) > 0 && key[len(key)-1] == '\n' {
		key = key[:len(key)-1]
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print("Password: ")
	}
	raw, err := gopass.GetPasswd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgexporter-cli: %v\n", err)
		os.Exit(mgmt.ExitError)
	}

	encoded, err := pgxconf.EncryptPassword(key, string(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgexporter-cli: %v\n", err)
		os.Exit(mgmt.ExitError)
	}
	fmt.Println(encoded)
	os.Exit(mgmt.ExitSuccess)
}

func versionString() string {
	if version == "" {
		return "devel"
	}
	return version
}
