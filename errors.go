package sessiongate

import "errors"

var (
	// ErrSignalSourceRequired is an exported constant or variable used by the session manager.
	ErrSignalSourceRequired = errors.New("signal source required")
	// ErrBaseURLRequired is an exported constant or variable used by the session manager.
	ErrBaseURLRequired = errors.New("API base URL required")
	// ErrManagerNotReady is an exported constant or variable used by the session manager.
	ErrManagerNotReady = errors.New("manager not initialized")
	// ErrManagerClosed is an exported constant or variable used by the session manager.
	ErrManagerClosed = errors.New("manager closed")
	// ErrEmailRequired is an exported constant or variable used by the session manager.
	ErrEmailRequired = errors.New("email required")
	// ErrPasswordRequired is an exported constant or variable used by the session manager.
	ErrPasswordRequired = errors.New("password required")
	// ErrInvalidCredentials is an exported constant or variable used by the session manager.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrOperationInProgress is an exported constant or variable used by the session manager.
	ErrOperationInProgress = errors.New("account operation already in progress")
	// ErrOperationThrottled is an exported constant or variable used by the session manager.
	ErrOperationThrottled = errors.New("account operation throttled")
	// ErrNotSignedIn is an exported constant or variable used by the session manager.
	ErrNotSignedIn = errors.New("no signed-in user")
)
