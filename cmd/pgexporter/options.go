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

	"github.com/pborman/getopt"
)

const usage = `pgexporter is a Prometheus exporter for PostgreSQL.

Usage:
  pgexporter [OPTION]...

Options:
  -c, --config=FILE           configuration file (default: "%s")
  -m, --master-key=FILE       master key file for the encrypted users
                                 store (default: "%s")
  -V, --version               output version information, then exit
  -?, --help                  show this help, then exit
`

type options struct {
	configFile    string
	masterKeyFile string
	version       bool
	help          bool
}

func (o *options) defaults() {
	o.configFile = "/etc/pgexporter/pgexporter.yaml"
	o.masterKeyFile = "/etc/pgexporter/master.key"
	o.version = false
	o.help = false
}

func printTry() {
	fmt.Fprintf(os.Stderr, "Try \"pgexporter --help\" for more information.\n")
}

func (o *options) parse() {
	s := getopt.New()
	s.SetUsage(printTry)
	s.SetProgram("pgexporter")

	s.StringVarLong(&o.configFile, "config", 'c', "")
	s.StringVarLong(&o.masterKeyFile, "master-key", 'm', "")
	s.BoolVarLong(&o.version, "version", 'V', "").SetFlag()
	s.BoolVarLong(&o.help, "help", '?', "").SetFlag()

	s.Parse(os.Args)

	if o.help {
		fmt.Printf(usage, o.configFile, o.masterKeyFile)
		os.Exit(0)
	}
	if o.version {
		fmt.Println("pgexporter", versionString())
		os.Exit(0)
	}
}
