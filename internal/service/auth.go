package service

import (
	"context"
	"strings"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// StaticKeyValidator resolves API keys to tenants from a static config
// mapping. Key issuance and rotation live in the external control plane;
// this covers deployments where keys arrive through the environment.
type StaticKeyValidator struct {
	keys map[string]string
}

// NewStaticKeyValidator parses a "key1:tenant1,key2:tenant2" spec. Malformed
// entries are skipped.
func NewStaticKeyValidator(spec string) *StaticKeyValidator {
	keys := make(map[string]string)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, tenant, ok := strings.Cut(pair, ":")
		if !ok || key == "" || tenant == "" {
			continue
		}
		keys[key] = tenant
	}
	return &StaticKeyValidator{keys: keys}
}

// ValidateAPIKey returns the tenant the key belongs to.
func (v *StaticKeyValidator) ValidateAPIKey(_ context.Context, key string) (string, error) {
	tenant, ok := v.keys[key]
	if !ok {
		return "", domain.ErrInvalidAPIKey
	}
	return tenant, nil
}

// Len reports how many keys are configured.
func (v *StaticKeyValidator) Len() int {
	return len(v.keys)
}
