package plugin

import "fmt"

// LoadError reports a plugin whose manifest is missing or unreadable, or whose
// factory is unknown or fails.
type LoadError struct {
	Folder string
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading plugin %s (%s): %v", e.Folder, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// InvalidError reports a plugin handle without the required shape, or whose
// Initialize failed.
type InvalidError struct {
	Folder string
	Reason string
	Err    error
}

func (e *InvalidError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid plugin %s: %s: %v", e.Folder, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid plugin %s: %s", e.Folder, e.Reason)
}

func (e *InvalidError) Unwrap() error {
	return e.Err
}
