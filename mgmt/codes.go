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

// Error codes are stable integers grouped into per-verb ranges, per
// spec.md §6 ("distinct ranges for conf get, conf set, etc."). A code
// never changes meaning across releases; new verbs get a fresh block.
const (
	CodeUnknownCommand    = 100
	CodeUnknownSubcommand = 101
	CodeMalformedRequest  = 102

	CodePingFailed = 200

	CodeShutdownRefused = 300

	CodeStatusUnavailable = 400

	CodeConfGetUnknownKey = 500
	CodeConfGetFailed     = 501

	CodeConfSetUnknownKey    = 600
	CodeConfSetInvalidValue  = 601
	CodeConfSetRestartNeeded = 602

	CodeConfReloadInvalid = 700
	CodeConfLsFailed      = 710

	CodeClearFailed = 800
)

// Process exit codes, per spec.md §4.8: "0 success, 1 error; transport
// errors surface distinct codes".
const (
	ExitSuccess        = 0
	ExitError          = 1
	ExitTransportError = 2
)
