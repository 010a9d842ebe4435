package validator

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/sniplink/sniplink/internal/errors"
)

var codePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// URLValidator validates URL and short-code inputs
type URLValidator struct {
	maxLength       int
	allowedSchemes  []string
	blockedDomains  []string
	blockPrivateIPs bool
}

// NewURLValidator creates a validator with default settings
func NewURLValidator() *URLValidator {
	return &URLValidator{
		maxLength:       2048,
		allowedSchemes:  []string{"http", "https"},
		blockedDomains:  []string{},
		blockPrivateIPs: true,
	}
}

// ValidateURL validates a destination URL string
func (v *URLValidator) ValidateURL(rawURL string) *errors.AppError {
	// Check if empty
	if strings.TrimSpace(rawURL) == "" {
		return errors.MissingURL()
	}

	// Check length
	if len(rawURL) > v.maxLength {
		return errors.InvalidURL("URL exceeds maximum length of 2048 characters")
	}

	// Parse URL
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return errors.InvalidURL("URL could not be parsed")
	}

	// Check scheme
	if !v.isAllowedScheme(parsedURL.Scheme) {
		return errors.InvalidURL("URL must use http or https scheme")
	}

	// Check host exists
	if parsedURL.Host == "" {
		return errors.InvalidURL("URL must have a valid host")
	}

	// Check for blocked domains
	if v.isBlockedDomain(parsedURL.Host) {
		return errors.InvalidURL("This domain is not allowed")
	}

	// Check for private/local IPs
	if v.blockPrivateIPs && v.isPrivateIP(parsedURL.Host) {
		return errors.InvalidURL("URLs pointing to private IPs are not allowed")
	}

	return nil
}

// ValidateShortCode validates a short code as it appears in a path.
// Looser than alias validation: generated codes are 7 chars, but any
// stored code between 1 and 50 chars is resolvable.
func (v *URLValidator) ValidateShortCode(code string) *errors.AppError {
	if code == "" {
		return errors.Validation("Short code is required")
	}

	if len(code) > 50 {
		return errors.Validation("Short code must be at most 50 characters")
	}

	if !codePattern.MatchString(code) {
		return errors.Validation("Short code can only contain letters, numbers, hyphens, and underscores")
	}

	return nil
}

// ValidateCustomAlias validates a caller-supplied alias. Each rule gets
// its own message so clients can tell what to fix.
func (v *URLValidator) ValidateCustomAlias(alias string) *errors.AppError {
	if alias == "" {
		return nil // alias is optional
	}

	if len(alias) < 3 {
		return errors.Validation("Custom alias must be at least 3 characters")
	}

	if len(alias) > 50 {
		return errors.Validation("Custom alias must be at most 50 characters")
	}

	if !codePattern.MatchString(alias) {
		return errors.Validation("Custom alias can only contain letters, numbers, hyphens, and underscores")
	}

	// Check reserved words (would shadow API routes)
	reserved := []string{"api", "health", "favicon.ico"}
	for _, r := range reserved {
		if strings.EqualFold(alias, r) {
			return errors.Validation("This alias is reserved and cannot be used")
		}
	}

	return nil
}

// ============================================================
// HELPER METHODS
// ============================================================

func (v *URLValidator) isAllowedScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, allowed := range v.allowedSchemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func (v *URLValidator) isBlockedDomain(host string) bool {
	host = strings.ToLower(host)
	for _, blocked := range v.blockedDomains {
		if strings.Contains(host, blocked) {
			return true
		}
	}
	return false
}

func (v *URLValidator) isPrivateIP(host string) bool {
	// Remove port if present
	hostOnly := host
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		hostOnly = host[:idx]
	}

	// Check for localhost variants and private ranges
	localPatterns := []string{
		"localhost",
		"127.",
		"0.0.0.0",
		"::1",
		"10.",
		"192.168.",
		"169.254.",
		"172.16.", "172.17.", "172.18.", "172.19.",
		"172.20.", "172.21.", "172.22.", "172.23.",
		"172.24.", "172.25.", "172.26.", "172.27.",
		"172.28.", "172.29.", "172.30.", "172.31.",
	}

	for _, pattern := range localPatterns {
		if strings.HasPrefix(hostOnly, pattern) || hostOnly == pattern {
			return true
		}
	}

	return false
}

// ============================================================
// CONFIGURATION METHODS
// ============================================================

// WithMaxLength sets maximum URL length
func (v *URLValidator) WithMaxLength(length int) *URLValidator {
	v.maxLength = length
	return v
}

// WithBlockedDomains adds domains to block list
func (v *URLValidator) WithBlockedDomains(domains ...string) *URLValidator {
	v.blockedDomains = append(v.blockedDomains, domains...)
	return v
}

// WithAllowPrivateIPs allows private IP addresses
func (v *URLValidator) WithAllowPrivateIPs() *URLValidator {
	v.blockPrivateIPs = false
	return v
}
