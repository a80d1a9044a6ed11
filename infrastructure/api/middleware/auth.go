package middleware

import (
	"net/http"
)

// AuthConfig holds API key authentication configuration.
type AuthConfig struct {
	apiKeys map[string]struct{}
	enabled bool
}

// NewAuthConfig creates an AuthConfig from a list of accepted keys. An
// empty list disables authentication entirely.
func NewAuthConfig(apiKeys []string) AuthConfig {
	keys := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	if len(keys) == 0 {
		return AuthConfig{enabled: false}
	}
	return AuthConfig{apiKeys: keys, enabled: true}
}

// Enabled returns true if authentication is enabled.
func (c AuthConfig) Enabled() bool { return c.enabled }

// WriteProtect returns middleware requiring a valid X-API-KEY header on
// mutating methods (POST, PUT, PATCH, DELETE). Read methods pass through
// unchallenged, as does everything when no keys are configured.
func WriteProtect(config AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !config.enabled || !mutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-KEY")
			if apiKey == "" {
				writeUnauthorized(w, "X-API-KEY header is required")
				return
			}
			if _, ok := config.apiKeys[apiKey]; !ok {
				writeUnauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// WriteProtectAuth is a convenience wrapper that builds the config from a
// slice of API keys.
func WriteProtectAuth(apiKeys []string) func(http.Handler) http.Handler {
	return WriteProtect(NewAuthConfig(apiKeys))
}

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter, detail string) {
	WriteJSON(w, http.StatusUnauthorized, ErrorResponse{
		Errors: []ErrorObject{{
			Status: http.StatusText(http.StatusUnauthorized),
			Title:  "Unauthorized",
			Detail: detail,
		}},
	})
}
