package domain

import "errors"

// ErrCancelled marks a transfer aborted by the user. It must never be shown
// as a failure.
var ErrCancelled = errors.New("transfer cancelled")

// ErrInvalidFeed indicates a feed parsed but contained no usable download URL.
var ErrInvalidFeed = errors.New("invalid docset feed")

// ErrTooManyRedirects indicates a transfer exceeded the redirect hop cap.
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrInstallPending indicates an install was requested for a docset that
// already has one in flight.
var ErrInstallPending = errors.New("install already in progress")

// ErrNotInstalled indicates a registry lookup for an unknown docset.
var ErrNotInstalled = errors.New("docset not installed")
