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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/xdg-go/stringprep"
	"golang.org/x/crypto/pbkdf2"
)

const scramMechanism = "SCRAM-SHA-256"

// doSCRAM drives the full client-first/server-first/client-final/
// server-final SCRAM-SHA-256 exchange (RFC 5802), after the server has
// already announced AuthenticationSASL and offered at least this
// mechanism. PostgreSQL never asks for channel binding, so this client
// always negotiates "n,,".
func (c *Conn) doSCRAM(password string) error {
	if err := requireMechanism(c.read.remaining(), scramMechanism); err != nil {
		return err
	}

	clientNonce, err := randomNonce()
	if err != nil {
		return err
	}
	clientFirstBare := "n=,r=" + clientNonce
	gs2Header := "n,,"

	if err := c.sendSASLInitial(scramMechanism, gs2Header+clientFirstBare); err != nil {
		return err
	}

	serverFirst, err := c.readSASLContinue()
	if err != nil {
		return err
	}
	nonce, salt, iterCount, err := parseServerFirst(serverFirst)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(nonce, clientNonce) {
		return fmt.Errorf("scram: server nonce does not extend client nonce")
	}

	saltedPassword := pbkdf2.Key([]byte(saslPrepPassword(password)), salt, iterCount, sha256.Size, sha256.New)
	clientKey := hmacSHA256(saltedPassword, []byte("Client Key"))
	storedKey := sha256.Sum256(clientKey)

	clientFinalWithoutProof := "c=" + base64.StdEncoding.EncodeToString([]byte(gs2Header)) + ",r=" + nonce
	authMessage := clientFirstBare + "," + serverFirst + "," + clientFinalWithoutProof

	clientSignature := hmacSHA256(storedKey[:], []byte(authMessage))
	clientProof := xorBytes(clientKey, clientSignature)
	clientFinal := clientFinalWithoutProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)

	if err := c.sendSASLResponse(clientFinal); err != nil {
		return err
	}

	serverFinal, err := c.readSASLFinal()
	if err != nil {
		return err
	}
	serverKey := hmacSHA256(saltedPassword, []byte("Server Key"))
	expectedSig := hmacSHA256(serverKey, []byte(authMessage))
	if err := verifyServerFinal(serverFinal, expectedSig); err != nil {
		return err
	}

	return c.expectAuthOK()
}

func saslPrepPassword(password string) string {
	prepped, err := stringprep.SASLprep.Prepare(password)
	if err != nil {
		// RFC 5802 allows falling back to the raw string when SASLprep
		// fails (e.g. the password isn't valid UTF-8 per the profile).
		return password
	}
	return prepped
}

func requireMechanism(body []byte, want string) error {
	for _, name := range splitNulTerminated(body) {
		if name == want {
			return nil
		}
	}
	return fmt.Errorf("AUTH_UNSUPPORTED: server did not offer %s", want)
}

func splitNulTerminated(body []byte) []string {
	var out []string
	start := 0
	for i, b := range body {
		if b == 0 {
			if i > start {
				out = append(out, string(body[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func randomNonce() (string, error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func parseServerFirst(msg string) (nonce string, salt []byte, iterCount int, err error) {
	var saltB64 string
	for _, part := range strings.Split(msg, ",") {
		if len(part) < 2 || part[1] != '=' {
			continue
		}
		switch part[0] {
		case 'r':
			nonce = part[2:]
		case 's':
			saltB64 = part[2:]
		case 'i':
			iterCount, err = strconv.Atoi(part[2:])
			if err != nil {
				return "", nil, 0, fmt.Errorf("scram: bad iteration count: %w", err)
			}
		}
	}
	if nonce == "" || saltB64 == "" || iterCount == 0 {
		return "", nil, 0, fmt.Errorf("scram: malformed server-first-message %q", msg)
	}
	salt, err = base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return "", nil, 0, fmt.Errorf("scram: bad salt encoding: %w", err)
	}
	return nonce, salt, iterCount, nil
}

func verifyServerFinal(msg string, expectedSig []byte) error {
	for _, part := range strings.Split(msg, ",") {
		if strings.HasPrefix(part, "v=") {
			got, err := base64.StdEncoding.DecodeString(part[2:])
			if err != nil {
				return fmt.Errorf("scram: bad server signature encoding: %w", err)
			}
			if !hmac.Equal(got, expectedSig) {
				return fmt.Errorf("scram: server signature mismatch")
			}
			return nil
		}
		if strings.HasPrefix(part, "e=") {
			return fmt.Errorf("scram: server reported error: %s", part[2:])
		}
	}
	return fmt.Errorf("scram: malformed server-final-message %q", msg)
}

// sendSASLInitial sends an AuthenticationSASL response: mechanism name
// followed by the initial client message, both inside one PasswordMessage.
func (c *Conn) sendSASLInitial(mechanism, data string) error {
	c.write.initMsg(frontendPassword)
	c.write.writeString(mechanism)
	c.write.putInt32(int32(len(data)))
	c.write.WriteString(data)
	if err := c.write.finishMsg(c.wr); err != nil {
		return err
	}
	return c.wr.Flush()
}

// sendSASLResponse sends raw SASL data with no mechanism name.
func (c *Conn) sendSASLResponse(data string) error {
	c.write.initMsg(frontendPassword)
	c.write.WriteString(data)
	if err := c.write.finishMsg(c.wr); err != nil {
		return err
	}
	return c.wr.Flush()
}

func (c *Conn) readSASLContinue() (string, error) {
	typ, err := c.read.readTypedMsg(c.rd)
	if err != nil {
		return "", err
	}
	if typ == backendErrorResponse {
		return "", parseErrorResponse(&c.read)
	}
	if typ != backendAuth {
		return "", fmt.Errorf("unexpected message %q waiting for SASL continue", byte(typ))
	}
	code, err := c.read.getInt32()
	if err != nil {
		return "", err
	}
	if code != authSASLContinue {
		return "", fmt.Errorf("expected AuthenticationSASLContinue, got code %d", code)
	}
	return string(c.read.remaining()), nil
}

func (c *Conn) readSASLFinal() (string, error) {
	typ, err := c.read.readTypedMsg(c.rd)
	if err != nil {
		return "", err
	}
	if typ == backendErrorResponse {
		return "", parseErrorResponse(&c.read)
	}
	if typ != backendAuth {
		return "", fmt.Errorf("unexpected message %q waiting for SASL final", byte(typ))
	}
	code, err := c.read.getInt32()
	if err != nil {
		return "", err
	}
	if code != authSASLFinal {
		return "", fmt.Errorf("expected AuthenticationSASLFinal, got code %d", code)
	}
	return string(c.read.remaining()), nil
}
