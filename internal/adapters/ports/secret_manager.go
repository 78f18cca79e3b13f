package ports

import "context"

// Secret represents a secret value with metadata
type Secret struct {
	Value     string
	Version   string
	CreatedAt string
	Metadata  map[string]string
}

// SecretManager retrieves secrets from a secret management service. The
// gateway secret key and the cron shared secret are loaded through this
// port at startup.
type SecretManager interface {
	GetSecret(ctx context.Context, path string) (*Secret, error)
}
