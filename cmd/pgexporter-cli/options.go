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

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pborman/getopt"
)

const usage = `pgexporter-cli talks to a running pgexporter's management port.

Usage:
  pgexporter-cli [OPTION]... COMMAND [SUBCOMMAND] [KEY=VALUE]...
  pgexporter-cli --master-key=FILE encrypt-password

Commands:
  ping
  shutdown
  status [details]
  conf reload|ls|get [key=KEY]|set key=KEY value=VALUE
  clear prometheus
  encrypt-password             prompts for a password, prints its
                                  encrypted users-file form

Options:
  -h, --host=HOSTNAME          management host (default: "%s")
  -p, --port=PORT              management port (default: %d)
  -t, --timeout=SECS           dial timeout in seconds (default: %d)
  -m, --master-key=FILE        master key file (encrypt-password only)
  -V, --version                output version information, then exit
  -?, --help                   show this help, then exit
`

type options struct {
	host          string
	port          int
	timeoutSec    uint
	timeout       time.Duration
	masterKeyFile string
	version       bool
	help          bool
}

func (o *options) defaults() {
	o.host = "localhost"
	o.port = 2345
	o.timeoutSec = 5
	o.masterKeyFile = ""
	o.version = false
	o.help = false
}

func printTry() {
	fmt.Fprintf(os.Stderr, "Try \"pgexporter-cli --help\" for more information.\n")
}

func (o *options) parse() (args []string) {
	s := getopt.New()
	s.SetUsage(printTry)
	s.SetProgram("pgexporter-cli")

	s.StringVarLong(&o.host, "host", 'h', "")
	s.IntVarLong(&o.port, "port", 'p', "")
	s.UintVarLong(&o.timeoutSec, "timeout", 't', "")
	s.StringVarLong(&o.masterKeyFile, "master-key", 'm', "")
	s.BoolVarLong(&o.version, "version", 'V', "").SetFlag()
	s.BoolVarLong(&o.help, "help", '?', "").SetFlag()

	s.Parse(os.Args)
	o.timeout = time.Duration(o.timeoutSec) * time.Second

	if o.help {
		fmt.Printf(usage, o.host, o.port, o.timeoutSec)
		os.Exit(0)
	}
	if o.version {
		fmt.Println("pgexporter-cli", versionString())
		os.Exit(0)
	}

	return s.Args()
}
