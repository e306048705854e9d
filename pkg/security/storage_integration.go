package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CredentialProperty names one field of a vended credential bundle, e.g.
// an access key id or a session token.
type CredentialProperty string

const (
	CredentialPropertyAccessKeyID     CredentialProperty = "AWS_ACCESS_KEY_ID"
	CredentialPropertySecretAccessKey CredentialProperty = "AWS_SECRET_ACCESS_KEY"
	CredentialPropertySessionToken    CredentialProperty = "AWS_SESSION_TOKEN"
	CredentialPropertyExpiresAt       CredentialProperty = "EXPIRES_AT"
)

// LocationAccessResult is the per-location outcome of
// ValidateAccessToLocations.
type LocationAccessResult struct {
	Allowed bool
	Reason  string
}

// StorageIntegration vends time-boxed, location-scoped credentials for a
// catalog's configured storage backend and checks whether a set of
// locations is within the allow-list a catalog or storage integration
// was configured with. The manager package is the only caller; the
// config string it passes through is the opaque value persisted by
// storage.StorageIntegrationSlice.
type StorageIntegration interface {
	GetSubscopedCreds(config string, allowListedLocations, readLocations, writeLocations []string) (map[CredentialProperty]string, error)
	ValidateAccessToLocations(config string, actions []string, locations []string) (map[string]LocationAccessResult, error)
}

// staticIntegrationConfig is the JSON shape StaticStorageIntegration
// expects in its config string.
type staticIntegrationConfig struct {
	AllowedPrefixes []string `json:"allowedPrefixes"`
	SigningKey      string   `json:"signingKey"`
}

// StaticStorageIntegration is a reference StorageIntegration good enough
// for tests: it has no cloud SDK dependency and vends a deterministic,
// signed token string in place of real cloud credentials, valid for a
// fixed TTL.
type StaticStorageIntegration struct {
	TTL time.Duration
}

// NewStaticStorageIntegration returns a StaticStorageIntegration with the
// given credential TTL. A zero TTL defaults to 15 minutes.
func NewStaticStorageIntegration(ttl time.Duration) *StaticStorageIntegration {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &StaticStorageIntegration{TTL: ttl}
}

func parseStaticConfig(config string) (staticIntegrationConfig, error) {
	var cfg staticIntegrationConfig
	if config == "" {
		return cfg, fmt.Errorf("storage integration config is empty")
	}
	if err := json.Unmarshal([]byte(config), &cfg); err != nil {
		return cfg, fmt.Errorf("malformed storage integration config: %w", err)
	}
	return cfg, nil
}

func locationAllowed(location string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(location, prefix) {
			return true
		}
	}
	return false
}

// GetSubscopedCreds vends a static, signed token scoped to the union of
// readLocations and writeLocations, each of which must fall under one of
// config's AllowedPrefixes.
func (s *StaticStorageIntegration) GetSubscopedCreds(config string, allowListedLocations, readLocations, writeLocations []string) (map[CredentialProperty]string, error) {
	cfg, err := parseStaticConfig(config)
	if err != nil {
		return nil, err
	}
	for _, loc := range append(append([]string{}, readLocations...), writeLocations...) {
		if !locationAllowed(loc, cfg.AllowedPrefixes) || !locationAllowed(loc, allowListedLocations) {
			return nil, fmt.Errorf("location %s is not within the allowed prefixes", loc)
		}
	}

	expiresAt := time.Now().Add(s.TTL)
	token := signToken(cfg.SigningKey, strings.Join(append(readLocations, writeLocations...), ","), expiresAt)

	return map[CredentialProperty]string{
		CredentialPropertyAccessKeyID:     "static-subscope",
		CredentialPropertySecretAccessKey: token,
		CredentialPropertyExpiresAt:       expiresAt.UTC().Format(time.RFC3339),
	}, nil
}

// ValidateAccessToLocations reports, per location, whether it falls
// within config's AllowedPrefixes. actions is accepted for interface
// compatibility with richer integrations but unused here: the static
// reference makes no read/write distinction.
func (s *StaticStorageIntegration) ValidateAccessToLocations(config string, actions []string, locations []string) (map[string]LocationAccessResult, error) {
	cfg, err := parseStaticConfig(config)
	if err != nil {
		return nil, err
	}
	result := make(map[string]LocationAccessResult, len(locations))
	for _, loc := range locations {
		if locationAllowed(loc, cfg.AllowedPrefixes) {
			result[loc] = LocationAccessResult{Allowed: true}
		} else {
			result[loc] = LocationAccessResult{Allowed: false, Reason: "location outside allowed prefixes"}
		}
	}
	return result, nil
}

func signToken(signingKey, scope string, expiresAt time.Time) string {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write([]byte(scope))
	mac.Write([]byte(expiresAt.UTC().Format(time.RFC3339)))
	sig := mac.Sum(nil)
	return base64.RawURLEncoding.EncodeToString(sig)
}

var _ StorageIntegration = (*StaticStorageIntegration)(nil)
