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
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pgexporter/pgexporter"
)

// userDoc is one line of the on-disk users file: a username and its
// AES-256-GCM-encrypted password, base64 encoded with the nonce
// prepended (nonce || ciphertext).
type userDoc struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"` // base64(nonce || ciphertext || tag)
}

type usersDocument struct {
	Users []userDoc `yaml:"users"`
}

// LoadUsers decrypts the users file at path using masterKey (32 bytes,
// AES-256) and returns a credential per username, keyed by username.
func LoadUsers(path string, masterKey []byte) (map[string]pgexporter.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}
	var doc usersDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}

	gcm, err := newGCM(masterKey)
	if err != nil {
		return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", err)
	}

	out := map[string]pgexporter.Credential{}
	for _, u := range doc.Users {
		password, err := decryptPassword(gcm, u.Password)
		if err != nil {
			return nil, pgexporter.NewError(pgexporter.ConfigInvalid, "", "", fmt.Errorf("user %q: %w", u.Username, err))
		}
		out[u.Username] = pgexporter.Credential{Username: u.Username, Password: password}
	}
	return out, nil
}

// EncryptPassword is the inverse of decryptPassword, used by
// cmd/pgexporter-cli's "encrypt-password" command to produce new entries.
func EncryptPassword(masterKey []byte, plaintext string) (string, error) {
	gcm, err := newGCM(masterKey)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func decryptPassword(gcm cipher.AEAD, encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	ns := gcm.NonceSize()
	if len(raw) < ns {
		return "", fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, ciphertext := raw[:ns], raw[ns:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes for AES-256, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
