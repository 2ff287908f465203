package utils

import "regexp"

// SubdomainLength is the exact length required of a client-requested custom
// subdomain. The broker's own protocol does not document this constraint,
// but the CLI has always enforced it and that behavior is preserved here
// (see "Open question — subdomain length" in the design notes).
const SubdomainLength = 10

// subdomainRegex enforces the client-side subdomain rule: exactly
// SubdomainLength alphanumeric characters, case-sensitive.
var subdomainRegex = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)

// ValidateSubdomain reports whether subdomain matches the client-side rule
// for a requested custom subdomain.
func ValidateSubdomain(subdomain string) bool {
	return subdomainRegex.MatchString(subdomain)
}
