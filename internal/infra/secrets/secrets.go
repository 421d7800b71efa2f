// Package secrets defines the indirection the rest of the service reads
// credentials through. Provisioning and rotation of the backing store are
// explicitly out of scope (spec §1's "infra provisioning, secret
// management"), so only the consumption contract lives here — a default,
// environment-backed implementation is enough to satisfy every caller in
// this process.
package secrets

import (
	"fmt"
	"os"
)

// Provider resolves named secrets once at startup. Implementations must
// never log the resolved value.
type Provider interface {
	Resolve(name string) (string, error)
}

// EnvProvider resolves secrets from process environment variables.
type EnvProvider struct{}

func NewEnvProvider() EnvProvider { return EnvProvider{} }

func (EnvProvider) Resolve(name string) (string, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", fmt.Errorf("secret %q not set", name)
	}
	return v, nil
}
