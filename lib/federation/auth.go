// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/keystone-hs/keystone/lib/canonicaljson"
	"github.com/keystone-hs/keystone/lib/ref"
	"github.com/keystone-hs/keystone/lib/signing"
)

// authScheme prefixes the Authorization header value.
const authScheme = "X-Matrix"

// Authorization is a parsed X-Matrix header.
type Authorization struct {
	Origin    ref.ServerName
	KeyID     string
	Signature string
}

// String renders the header value.
func (a Authorization) String() string {
	return fmt.Sprintf(`%s origin=%s,key="%s",sig="%s"`, authScheme, a.Origin, a.KeyID, a.Signature)
}

// requestSigningBytes canonically encodes the object an X-Matrix
// signature covers. uri is the request path plus "?query" when a
// query is present. content is omitted for requests without a body.
func requestSigningBytes(method, uri string, origin, destination ref.ServerName, content any) ([]byte, error) {
	object := map[string]any{
		"method":      method,
		"uri":         uri,
		"origin":      origin.String(),
		"destination": destination.String(),
	}
	if content != nil {
		object["content"] = content
	}
	encoded, err := canonicaljson.Marshal(object)
	if err != nil {
		return nil, fmt.Errorf("encoding request for signing: %w", err)
	}
	return encoded, nil
}

// SignRequest produces the Authorization for one request.
func SignRequest(signer signing.Signer, method, uri string, destination ref.ServerName, content any) (Authorization, error) {
	message, err := requestSigningBytes(method, uri, signer.Domain(), destination, content)
	if err != nil {
		return Authorization{}, err
	}
	return Authorization{
		Origin:    signer.Domain(),
		KeyID:     signer.KeyID(),
		Signature: signer.Sign(message),
	}, nil
}

// ParseAuthorization parses an X-Matrix header value.
func ParseAuthorization(header string) (Authorization, error) {
	rest, ok := strings.CutPrefix(header, authScheme+" ")
	if !ok {
		return Authorization{}, fmt.Errorf("authorization scheme is not %s", authScheme)
	}
	var auth Authorization
	for _, pair := range strings.Split(rest, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return Authorization{}, fmt.Errorf("malformed authorization parameter %q", pair)
		}
		value = strings.Trim(value, `"`)
		switch key {
		case "origin":
			origin, err := ref.ParseServerName(value)
			if err != nil {
				return Authorization{}, fmt.Errorf("authorization origin: %w", err)
			}
			auth.Origin = origin
		case "key":
			auth.KeyID = value
		case "sig":
			auth.Signature = value
		}
	}
	if auth.Origin.IsZero() || auth.KeyID == "" || auth.Signature == "" {
		return Authorization{}, fmt.Errorf("authorization needs origin, key and sig")
	}
	return auth, nil
}

// VerifyRequest checks an X-Matrix signature against the request it
// claims to cover. content is the decoded JSON body, or nil.
func VerifyRequest(auth Authorization, publicKey ed25519.PublicKey, method, uri string, destination ref.ServerName, content any) error {
	message, err := requestSigningBytes(method, uri, auth.Origin, destination, content)
	if err != nil {
		return err
	}
	if err := signing.Verify(publicKey, message, auth.Signature); err != nil {
		return fmt.Errorf("X-Matrix signature from %s: %w", auth.Origin, err)
	}
	return nil
}
