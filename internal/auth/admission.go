package auth

import "fmt"

// AdmissionPolicy decides whether a new account may be registered, given how
// many accounts already exist. It is evaluated inside the registration
// transaction.
type AdmissionPolicy string

const (
	// AdmitFirstUser admits a single owner; later registrations are refused.
	AdmitFirstUser AdmissionPolicy = "first-user"
	// AdmitOpen admits everyone.
	AdmitOpen AdmissionPolicy = "open"
	// AdmitClosed refuses everyone.
	AdmitClosed AdmissionPolicy = "closed"
)

// ParseAdmissionPolicy parses a policy name.
func ParseAdmissionPolicy(s string) (AdmissionPolicy, error) {
	switch p := AdmissionPolicy(s); p {
	case AdmitFirstUser, AdmitOpen, AdmitClosed:
		return p, nil
	}
	return "", fmt.Errorf("unknown registration mode %q (want first-user, open or closed)", s)
}

// Admits reports whether a registration is allowed when existing accounts
// are already present.
func (p AdmissionPolicy) Admits(existing int) bool {
	switch p {
	case AdmitOpen:
		return true
	case AdmitFirstUser:
		return existing == 0
	}
	return false
}
