package provider

import (
	"context"
	"os"

	"github.com/vectorhaus/kbvec/domain/document"
)

// EnvAPIKeyVar is the environment variable consulted as the last credential
// fallback.
const EnvAPIKeyVar = "OPENAI_API_KEY"

// ChainResolver resolves a provider credential for a knowledge base by
// checking, in order: the per-user resolver, the configured default key, and
// the process environment. An empty result means no credential is available
// and the caller falls back to placeholder vectors.
type ChainResolver struct {
	user       document.CredentialResolver
	defaultKey string
}

// NewChainResolver creates a ChainResolver. user may be nil when no per-user
// credential store is wired.
func NewChainResolver(user document.CredentialResolver, defaultKey string) ChainResolver {
	return ChainResolver{user: user, defaultKey: defaultKey}
}

// Resolve returns the credential for the knowledge base, or empty when none
// is configured anywhere in the chain.
func (r ChainResolver) Resolve(ctx context.Context, knowledgeBaseID string) (string, error) {
	if r.user != nil {
		key, err := r.user.Resolve(ctx, knowledgeBaseID)
		if err != nil {
			return "", err
		}
		if key != "" {
			return key, nil
		}
	}
	if r.defaultKey != "" {
		return r.defaultKey, nil
	}
	return os.Getenv(EnvAPIKeyVar), nil
}

var _ document.CredentialResolver = ChainResolver{}
