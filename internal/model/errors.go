package model

import "errors"

// Common errors used across the application
var (
	// Pilot errors
	ErrPilotNotFound  = errors.New("pilot not found")
	ErrPilotIDTaken   = errors.New("pilot id is registered with a different secret")
	ErrSecretMismatch = errors.New("secret does not match pilot")
	ErrNameTooShort   = errors.New("pilot name missing or too short")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")

	// Group errors
	ErrGroupNotFound  = errors.New("group not found")
	ErrNotInGroup     = errors.New("pilot is not in a group")
	ErrNotGroupMember = errors.New("pilot is not a member of this group")
	ErrAlreadyInGroup = errors.New("pilot is already in this group")

	// Waypoint errors
	ErrInvalidWaypoint = errors.New("invalid waypoint")
	ErrDesync          = errors.New("waypoint document fingerprint mismatch")

	// Request errors
	ErrMissingData = errors.New("required request data missing")
)
