package server

import "errors"

var (
	ErrStatusMatchNotFound string = "MATCH_NOT_FOUND"
	ErrStatusMatchClosed   string = "MATCH_CLOSED"
	ErrStatusUnauthorized  string = "UNAUTHORIZED"
	ErrStatusInternal      string = "INTERNAL"
)

var (
	ErrFailedToLoadMatch = errors.New("failed to load match")
	// ErrMatchClosed is returned by a runtime that has ended or been unloaded;
	// the caller may load the match again.
	ErrMatchClosed = errors.New("match runtime closed")
	ErrNotAPlayer  = errors.New("caller is not a player of the match")
)
