package permission

// Permission represents a scope granted to a provider API key
type Permission string

// Valid provider API scopes
const (
	INTENTS_WRITE   Permission = "INTENTS_WRITE"
	INTENTS_CONFIRM Permission = "INTENTS_CONFIRM"
)

// Key kinds and the scopes each one carries
const (
	KeySecret      = "sk_test_"
	KeyPublishable = "pk_test_"
)

// IsValid checks if the given permission is a valid permission constant
func IsValid(p Permission) bool {
	switch p {
	case INTENTS_WRITE, INTENTS_CONFIRM:
		return true
	default:
		return false
	}
}

// ScopesFor returns the scopes granted to a key of the given kind.
// Secret keys can do everything, publishable keys may only confirm.
func ScopesFor(kind string) []Permission {
	switch kind {
	case KeySecret:
		return []Permission{INTENTS_WRITE, INTENTS_CONFIRM}
	case KeyPublishable:
		return []Permission{INTENTS_CONFIRM}
	default:
		return nil
	}
}
