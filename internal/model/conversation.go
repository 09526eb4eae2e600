package model

// Conversation identifies either the public room or an unordered pair of users.
type Conversation struct {
	Scope Scope
	UserA string
	UserB string
}

// Public returns the public room conversation
func Public() Conversation {
	return Conversation{Scope: ScopePublic}
}

// Private returns the conversation between a and b. The pair is stored
// sorted so Private(a, b) == Private(b, a).
func Private(a, b string) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation{Scope: ScopePrivate, UserA: a, UserB: b}
}

// Key is the value stored with every message of the conversation
func (c Conversation) Key() string {
	if c.Scope == ScopePrivate {
		return "private:" + c.UserA + ":" + c.UserB
	}
	return "public"
}

// Includes reports whether userID is a participant. Everyone is in the public room.
func (c Conversation) Includes(userID string) bool {
	if c.Scope != ScopePrivate {
		return true
	}
	return c.UserA == userID || c.UserB == userID
}
