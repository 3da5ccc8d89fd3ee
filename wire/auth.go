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

package wire

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// authenticate reads the backendAuth message(s) the server sends right
// after startup and drives whichever of trust/cleartext/MD5/SCRAM-SHA-256
// it requests. Any other method is AUTH_UNSUPPORTED (spec.md §4.1).
func (c *Conn) authenticate(cred Credential) error {
	typ, err := c.read.readTypedMsg(c.rd)
	if err != nil {
		return err
	}
	switch typ {
	case backendErrorResponse:
		return parseErrorResponse(&c.read)
	case backendAuth:
		// fall through below
	default:
		return fmt.Errorf("unexpected message %q waiting for auth request", byte(typ))
	}

	code, err := c.read.getInt32()
	if err != nil {
		return err
	}

	switch code {
	case authOK:
		return nil
	case authCleartextPassword:
		return c.sendPasswordMessage(cred.Password)
	case authMD5Password:
		salt, err := c.read.getBytes(4)
		if err != nil {
			return err
		}
		hashed := md5Password(cred.Username, cred.Password, salt)
		if err := c.sendPasswordMessage(hashed); err != nil {
			return err
		}
		return c.expectAuthOK()
	case authSASL:
		return c.doSCRAM(cred.Password)
	default:
		return fmt.Errorf("AUTH_UNSUPPORTED: method code %d", code)
	}
}

// expectAuthOK reads one more backendAuth message and requires it to be
// authOK; used after a password/SASL exchange completes.
func (c *Conn) expectAuthOK() error {
	typ, err := c.read.readTypedMsg(c.rd)
	if err != nil {
		return err
	}
	if typ == backendErrorResponse {
		return parseErrorResponse(&c.read)
	}
	if typ != backendAuth {
		return fmt.Errorf("unexpected message %q waiting for auth completion", byte(typ))
	}
	code, err := c.read.getInt32()
	if err != nil {
		return err
	}
	if code != authOK {
		return fmt.Errorf("authentication failed (code %d)", code)
	}
	return nil
}

func (c *Conn) sendPasswordMessage(s string) error {
	c.write.initMsg(frontendPassword)
	c.write.writeString(s)
	if err := c.write.finishMsg(c.wr); err != nil {
		return err
	}
	return c.wr.Flush()
}

// md5Password implements PostgreSQL's documented MD5 auth algorithm:
// "md5" + md5(md5(password + username) + salt).
func md5Password(username, password string, salt []byte) string {
	inner := md5.Sum([]byte(password + username))
	outer := md5.Sum(append([]byte(hex.EncodeToString(inner[:])), salt...))
	return "md5" + hex.EncodeToString(outer[:])
}
