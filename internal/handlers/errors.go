package handlers

var (
	ErrStatusMatchNotFound string = "MATCH_NOT_FOUND"
	ErrStatusConflict      string = "MATCH_CONFLICT"
	ErrStatusUnauthorized  string = "UNAUTHORIZED"
	ErrStatusBadRequest    string = "BAD_REQUEST"
	ErrStatusInternal      string = "INTERNAL"
)
