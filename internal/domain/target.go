package domain

import "slices"

// DefaultSSHPort is used when a target does not configure one.
const DefaultSSHPort = 22

// Target is a remote database host reachable over SQL and SSH.
// Targets are loaded from settings and never mutated at runtime.
type Target struct {
	// Alias is the unique, case-sensitive name of the target.
	Alias string `json:"alias"`

	// DBURL is the SQL connection string. Secret.
	DBURL string `json:"-"`

	SSHHost     string `json:"ssh_host"`
	SSHPort     int    `json:"ssh_port"`
	SSHUsername string `json:"ssh_username"`

	// SSHPassword is the password for SSHUsername. Secret.
	SSHPassword string `json:"-"`

	// Admins are the principals allowed to run actions and views on this target.
	Admins []int64 `json:"admins"`

	// Receivers are notified about alerts fired for this target.
	Receivers []int64 `json:"receivers"`

	// Emails receive alert notification emails for this target.
	Emails []string `json:"emails,omitempty"`
}

// IsAdmin reports whether the principal is authorized on this target.
func (t *Target) IsAdmin(userID int64) bool {
	return slices.Contains(t.Admins, userID)
}

// Identity is the authenticated caller of a request.
type Identity struct {
	// UserID is set for human operators.
	UserID *int64

	// Service marks the trusted alerting bot. The bot may act on behalf of
	// a user, in which case UserID is set too and target permissions apply.
	Service bool
}

// IsHuman reports whether the identity carries a human user id.
func (i Identity) IsHuman() bool {
	return i.UserID != nil
}

// HumanIdentity returns an identity for the given user id.
func HumanIdentity(userID int64) Identity {
	return Identity{UserID: &userID}
}

// ServiceIdentity returns the identity of a trusted service caller.
func ServiceIdentity() Identity {
	return Identity{Service: true}
}
