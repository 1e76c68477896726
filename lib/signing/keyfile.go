// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package signing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/secret"
)

// maxKeyFileSize bounds key file reads; a sealed key line is well under
// a kilobyte.
const maxKeyFileSize = 64 << 10

// LoadKeyFile reads a key file for domain. When identityFile is not
// empty the key file is age-encrypted and identityFile holds the
// X25519 identity that decrypts it.
func LoadKeyFile(path string, domain ref.ServerName, identityFile string) (*Key, error) {
	data, err := readBounded(path)
	if err != nil {
		return nil, fmt.Errorf("reading signing key %s: %w", path, err)
	}
	defer secret.Zero(data)

	if identityFile != "" {
		identities, err := loadIdentities(identityFile)
		if err != nil {
			return nil, err
		}
		plaintext, err := decrypt(data, identities)
		if err != nil {
			return nil, fmt.Errorf("decrypting signing key %s: %w", path, err)
		}
		defer secret.Zero(plaintext)
		data = plaintext
	}

	key, err := ParseKey(data, domain)
	if err != nil {
		return nil, fmt.Errorf("signing key %s: %w", path, err)
	}
	return key, nil
}

// ParseKey decodes the single-line "ed25519 <version> <seed>" form.
func ParseKey(data []byte, domain ref.ServerName) (*Key, error) {
	fields := strings.Fields(string(data))
	if len(fields) != 3 {
		return nil, fmt.Errorf("expected %q, got %d fields", "ed25519 <version> <seed>", len(fields))
	}
	if fields[0] != Algorithm {
		return nil, fmt.Errorf("unsupported key algorithm %q", fields[0])
	}
	seed, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(fields[2], "="))
	if err != nil {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	return NewKey(domain, fields[1], seed)
}

// WriteKeyFile writes key to path with mode 0600. With recipients the
// file is age-encrypted to them. An existing file is not overwritten.
func WriteKeyFile(path string, key *Key, recipients ...age.Recipient) error {
	line := []byte(Algorithm + " " + key.version + " " +
		base64.RawStdEncoding.EncodeToString(key.seed.Bytes()) + "\n")
	defer secret.Zero(line)

	payload := line
	if len(recipients) > 0 {
		var sealed bytes.Buffer
		writer, err := age.Encrypt(&sealed, recipients...)
		if err != nil {
			return fmt.Errorf("creating age encryptor: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("encrypting signing key: %w", err)
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("finalizing signing key encryption: %w", err)
		}
		payload = sealed.Bytes()
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating signing key %s: %w", path, err)
	}
	if _, err := file.Write(payload); err != nil {
		file.Close()
		return fmt.Errorf("writing signing key %s: %w", path, err)
	}
	return file.Close()
}

// LoadOrGenerateKeyFile loads the key at path, or generates a version
// "auto" key and writes it there if the file does not exist. When
// identityFile is set, a new key is sealed to that identity's
// recipient. The boolean reports whether a key was generated.
func LoadOrGenerateKeyFile(path string, domain ref.ServerName, identityFile string) (*Key, bool, error) {
	key, err := LoadKeyFile(path, domain, identityFile)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	key, err = GenerateKey(domain, "auto")
	if err != nil {
		return nil, false, err
	}
	var recipients []age.Recipient
	if identityFile != "" {
		identities, err := loadIdentities(identityFile)
		if err != nil {
			key.Close()
			return nil, false, err
		}
		for _, identity := range identities {
			if x25519, ok := identity.(*age.X25519Identity); ok {
				recipients = append(recipients, x25519.Recipient())
			}
		}
		if len(recipients) == 0 {
			key.Close()
			return nil, false, fmt.Errorf("age identity file %s has no X25519 identity", identityFile)
		}
	}
	if err := WriteKeyFile(path, key, recipients...); err != nil {
		key.Close()
		return nil, false, err
	}
	return key, true, nil
}

func loadIdentities(path string) ([]age.Identity, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening age identity %s: %w", path, err)
	}
	defer file.Close()
	identities, err := age.ParseIdentities(io.LimitReader(file, maxKeyFileSize))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity %s: %w", path, err)
	}
	return identities, nil
}

func decrypt(ciphertext []byte, identities []age.Identity) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(io.LimitReader(reader, maxKeyFileSize))
}

func readBounded(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxKeyFileSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxKeyFileSize {
		secret.Zero(data)
		return nil, fmt.Errorf("file exceeds %d bytes", maxKeyFileSize)
	}
	return data, nil
}
