package database

import "errors"

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("not found")

	// ErrCodeTaken means the tracking code already exists in history; the caller should redraw
	ErrCodeTaken = errors.New("tracking code already issued")

	// ErrActiveSessionExists means another request created the delivery's active session first
	ErrActiveSessionExists = errors.New("delivery already has an active tracking session")
)
