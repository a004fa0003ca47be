// Package paths holds the string helpers used to build links and asset URLs
// and to decide whether a media URL points at the trusted storage host.
package paths

import (
	"net/url"
	"strings"
)

const (
	// DeploymentPrefix is the base path the site is published under.
	DeploymentPrefix = "/devdirect-website"

	// DefaultTrustedSuffix is the host suffix accepted for hosted storage.
	DefaultTrustedSuffix = ".supabase.co"
)

// GetPath returns p unchanged. Page links go through it so path rewriting can
// be introduced in one place.
func GetPath(p string) string {
	return p
}

// GetImagePath strips the deployment prefix from an asset path.
func GetImagePath(imagePath string) string {
	if strings.HasPrefix(imagePath, DeploymentPrefix) {
		return strings.TrimPrefix(imagePath, DeploymentPrefix)
	}
	return imagePath
}

// StorageURLValidator is an allow-list host check for absolute media URLs.
// Hosts are compared lowercased and without port. The path is not inspected.
type StorageURLValidator struct {
	Host          string
	TrustedSuffix string
}

// NewStorageURLValidator derives the trusted host from the storage base URL.
// An empty or unparseable base URL yields a validator that rejects everything.
func NewStorageURLValidator(baseURL, trustedSuffix string) StorageURLValidator {
	trustedSuffix = strings.ToLower(strings.TrimSpace(trustedSuffix))
	if trustedSuffix == "" {
		trustedSuffix = DefaultTrustedSuffix
	}
	v := StorageURLValidator{TrustedSuffix: trustedSuffix}

	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return v
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return v
	}
	v.Host = strings.ToLower(parsed.Hostname())
	return v
}

// Valid reports whether raw is hosted on the configured storage host or on a
// host ending with the trusted suffix.
func (v StorageURLValidator) Valid(raw string) bool {
	if raw == "" {
		return false
	}

	parsed, err := url.Parse(raw)
	if err != nil || !parsed.IsAbs() || parsed.Hostname() == "" {
		return false
	}

	if v.Host == "" {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == strings.ToLower(v.Host) {
		return true
	}
	suffix := strings.ToLower(v.TrustedSuffix)
	return suffix != "" && strings.HasSuffix(host, suffix)
}
