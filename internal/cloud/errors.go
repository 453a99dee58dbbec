package cloud

import "errors"

// Sentinel errors for cloud operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, cloud.ErrNotConfigured) {
//	    // No account configured, skip cloud features
//	}
var (
	// ErrNotConfigured indicates no credentials or tokens are configured.
	ErrNotConfigured = errors.New("cloud: no credentials configured")

	// ErrAuthFailed indicates the identity provider rejected a login or refresh.
	ErrAuthFailed = errors.New("cloud: authentication failed")

	// ErrRequestFailed indicates a transport error or non-200 response.
	ErrRequestFailed = errors.New("cloud: request failed")

	// ErrAPIError indicates the API answered with a non-success code.
	ErrAPIError = errors.New("cloud: api error")

	// ErrNoDevices indicates the account has no robots bound.
	ErrNoDevices = errors.New("cloud: no devices on account")
)
