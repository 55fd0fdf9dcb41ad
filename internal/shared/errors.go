package shared

import "fmt"

var (
	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrRefreshFailed    = fmt.Errorf("credential refresh failed")

	// Codec errors
	ErrEmptyPlaylist     = fmt.Errorf("playlist contains no recoverable songs")
	ErrUnsupportedFormat = fmt.Errorf("unsupported playlist format")
	ErrUnknownFormat     = fmt.Errorf("could not detect playlist format")

	// API and back-end errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrPlaylistNotFound   = fmt.Errorf("playlist not found")
	ErrArtistNotFound     = fmt.Errorf("artist not found")

	// Job errors
	ErrJobNotFound  = fmt.Errorf("job not found")
	ErrJobTerminal  = fmt.Errorf("job already in a terminal state")
	ErrJobCancelled = fmt.Errorf("job cancelled")

	// Duplicate and conflict errors are distinguishable from generic
	// failures so callers can decide to skip, retry or rename.
	ErrDuplicateSong     = fmt.Errorf("song already in target playlist")
	ErrDuplicatePlaylist = fmt.Errorf("playlist name already in use")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
)
