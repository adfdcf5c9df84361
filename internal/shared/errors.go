package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Upstream (Subsonic) errors
	ErrUpstream         = fmt.Errorf("upstream request failed")
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrAlbumNotFound    = fmt.Errorf("album not found")
	ErrUnexpectedFormat = fmt.Errorf("unexpected response format")

	// Downstream (Discord) errors
	ErrSinkStartup      = fmt.Errorf("presence sink failed to start")
	ErrSinkPush         = fmt.Errorf("presence update failed")
	ErrSinkDisconnected = fmt.Errorf("presence sink disconnected")
	ErrNoSocket         = fmt.Errorf("no discord ipc socket found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrTimeout         = fmt.Errorf("operation timed out")
)
