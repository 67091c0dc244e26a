// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
)

// BearerAuthConfig holds JWT Bearer token authentication configuration
// for the MCP HTTP endpoint itself (A5); orthogonal to C9's authzpolicy,
// which governs whether a caller's token is then forwarded upstream.
type BearerAuthConfig struct {
	// Enabled determines if Bearer token authentication is active
	Enabled bool `json:"enabled"`

	// Token validation options (mutually exclusive)
	JWKSUri   string `json:"jwksUri,omitempty"`   // JWKS endpoint for key discovery
	PublicKey string `json:"publicKey,omitempty"` // Direct RSA public key (PEM format)

	// JWT validation parameters
	Algorithm string `json:"algorithm"` // JWT signing algorithm (RS256, RS512, etc.)

	// Claims validation
	Issuer         string   `json:"issuer,omitempty"`         // Expected token issuer
	Audience       string   `json:"audience,omitempty"`       // Expected token audience
	RequiredScopes []string `json:"requiredScopes,omitempty"` // Required scopes in token

	// Behavior configuration
	Required bool `json:"required"` // Whether authentication is mandatory
	CacheTTL int  `json:"cacheTtl"` // JWKS cache TTL in seconds

	// Logger receives debug-level notes about key-source selection and
	// validation failures; nil disables this logging entirely. Not
	// serialized, consistent with "no globals" — the caller always
	// threads its own *slog.Logger in explicitly.
	Logger *slog.Logger `json:"-"`
}

// Validate checks the configuration for consistency and completeness,
// filling in defaults (algorithm, cache TTL) as a side effect.
func (c *BearerAuthConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := c.validateKeySource(); err != nil {
		return err
	}
	c.validateAlgorithm()
	if !isValidAlgorithm(c.Algorithm) {
		return fmt.Errorf("unsupported JWT algorithm: %s", c.Algorithm)
	}
	if err := c.validateCacheTTL(); err != nil {
		return err
	}
	return c.validateIssuer()
}

// validateKeySource enforces that exactly one of JWKSUri/PublicKey is set,
// and that a JWKS URI is either HTTPS or a loopback address (the common
// local-development shortcut: a JWKS server running on localhost/127.0.0.1
// without TLS).
func (c *BearerAuthConfig) validateKeySource() error {
	if c.JWKSUri == "" && c.PublicKey == "" {
		return fmt.Errorf("either jwksUri or publicKey must be provided when authentication is enabled")
	}
	if c.JWKSUri != "" && c.PublicKey != "" {
		return fmt.Errorf("cannot specify both jwksUri and publicKey, choose one")
	}
	if c.JWKSUri == "" {
		return nil
	}
	if strings.HasPrefix(c.JWKSUri, "https://") {
		return nil
	}
	if isLoopbackHTTP(c.JWKSUri) {
		return nil
	}
	return fmt.Errorf("jwksUri must use HTTPS (loopback http:// URIs are allowed for local development)")
}

func isLoopbackHTTP(uri string) bool {
	if !strings.HasPrefix(uri, "http://") {
		return false
	}
	host := strings.TrimPrefix(uri, "http://")
	return strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1")
}

func (c *BearerAuthConfig) validateAlgorithm() {
	if c.Algorithm == "" {
		c.Algorithm = "RS256"
	}
}

func (c *BearerAuthConfig) validateCacheTTL() error {
	if c.CacheTTL <= 0 {
		c.CacheTTL = 300
	}
	if c.CacheTTL > 3600 {
		return fmt.Errorf("cacheTtl cannot exceed 3600 seconds (1 hour)")
	}
	return nil
}

func (c *BearerAuthConfig) validateIssuer() error {
	if c.Issuer != "" && !strings.HasPrefix(c.Issuer, "https://") && !strings.HasPrefix(c.Issuer, "http://") {
		return fmt.Errorf("issuer must be a valid URL (if provided)")
	}
	return nil
}

func (c *BearerAuthConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// isValidAlgorithm checks if the JWT algorithm is supported.
func isValidAlgorithm(alg string) bool {
	supportedAlgorithms := []string{
		"RS256", "RS384", "RS512",
		"ES256", "ES384", "ES512",
		"PS256", "PS384", "PS512",
	}

	return slices.Contains(supportedAlgorithms, alg)
}

// GetKeySource returns a description of the key source for logging.
func (c *BearerAuthConfig) GetKeySource() string {
	if c.JWKSUri != "" {
		return fmt.Sprintf("JWKS from %s", c.JWKSUri)
	}
	if c.PublicKey != "" {
		return "Static public key"
	}
	return "No key source configured"
}

// HasScopeValidation returns true if scope validation is configured.
func (c *BearerAuthConfig) HasScopeValidation() bool {
	return len(c.RequiredScopes) > 0
}