package registry

import "fmt"

// ConflictError reports a command name or alias that is already taken.
type ConflictError struct {
	Key           string
	Command       string
	Owner         string
	ExistingOwner string
	Alias         bool
}

func (e *ConflictError) Error() string {
	kind := "name"
	if e.Alias {
		kind = "alias"
	}
	return fmt.Sprintf("command %s %q of %s (owner %s) is already registered by %s",
		kind, e.Key, e.Command, e.Owner, e.ExistingOwner)
}
