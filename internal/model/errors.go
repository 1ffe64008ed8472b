package model

import "errors"

var (
	// ErrNotFound is returned when the requested resource doesn't exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a resource with the same identity exists.
	ErrAlreadyExists = errors.New("already exists")
	// ErrNotValid is returned when a resource or request is not valid.
	ErrNotValid = errors.New("not valid")
)
