// Package config holds runtime configuration derived from CLI flags and
// environment variables, plus the certificate-loading helper used by the
// TLS-enabled gRPC listener.
package config

import (
	"os"

	"github.com/containermaker/container-maker-server/pkg/apierrors"
)

// RuntimeConfig groups the server's runtime knobs. cmd/containermakerd
// does not build one; it reads its flags through viper directly.
type RuntimeConfig struct {
	GRPCPort       int
	HealthPort     int
	TLSCertEnvVar  string
	TLSCertPath    string
	TLSKeyEnvVar   string
	TLSKeyPath     string
	KubeconfigPath string
	LogLevel       int
}

// ProtectedNamespaces must never be deleted by the lingering-namespace
// sweep, ported from the original's PROTECTED_NAMESPACES.
var ProtectedNamespaces = map[string]bool{
	"default":         true,
	"kube-system":     true,
	"kube-public":     true,
	"kube-node-lease": true,
	"ingress-nginx":   true,
	"metallb-system":  true,
}

// IngressHost returns the host value stamped onto every ingress rule,
// read from the INGRESS_HOST environment variable with a fallback
// suitable for local/dev clusters where no DNS entry is provisioned.
func IngressHost() string {
	if v := os.Getenv("INGRESS_HOST"); v != "" {
		return v
	}
	return "containers.local"
}

// ReadCertMaterial resolves PEM material either directly from the named
// environment variable's value, or - if that variable is empty - from the
// given file path. Ported from read_certs(env_var_key, path) in the
// original implementation.
func ReadCertMaterial(envVarKey, path string) ([]byte, error) {
	if v := os.Getenv(envVarKey); v != "" {
		return []byte(v), nil
	}
	if path == "" {
		return nil, apierrors.NewConfigError("no certificate material: env var %s is empty and no path given", envVarKey)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apierrors.NewConfigError("failed to read certificate from %s: %v", path, err)
	}
	return data, nil
}
