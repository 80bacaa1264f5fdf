// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolclient

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/VeracityAI/VeracityFOSS/services/assess/agent"
)

// Vault holds a target token encrypted at rest in a memguard enclave.
// The plaintext exists only inside Materialize, for the duration of
// building the Credentials handed to a dial.
//
// Thread Safety: Vault is safe for concurrent use.
type Vault struct {
	endpoint string
	token    *memguard.Enclave
	extra    map[string]string
}

// NewVault seals the token. The passed string should not be retained
// by the caller.
func NewVault(endpoint, token string, extra map[string]string) *Vault {
	var enclave *memguard.Enclave
	if token != "" {
		enclave = memguard.NewEnclave([]byte(token))
	}
	return &Vault{endpoint: endpoint, token: enclave, extra: extra}
}

// Materialize decrypts the token into a Credentials value for one dial.
func (v *Vault) Materialize() (agent.Credentials, error) {
	creds := agent.Credentials{Endpoint: v.endpoint, Extra: v.extra}
	if v.token == nil {
		return creds, nil
	}
	buf, err := v.token.Open()
	if err != nil {
		return agent.Credentials{}, fmt.Errorf("toolclient: opening credential enclave: %w", err)
	}
	defer buf.Destroy()
	creds.Token = buf.String()
	return creds, nil
}
