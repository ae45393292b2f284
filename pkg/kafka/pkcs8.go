// Copyright 2026 The scramsync Authors
// SPDX-License-Identifier: Apache-2.0

package kafka

import "github.com/youmark/pkcs8"

// decryptPKCS8 unwraps a password-protected PKCS#8 key. Java TLS tooling
// commonly produces these when a keystore is exported to PEM.
func decryptPKCS8(der, password []byte) (any, error) {
	return pkcs8.ParsePKCS8PrivateKey(der, password)
}
