package service

import "errors"

// Sentinel errors for the service layer.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("link not found")
	ErrExpired      = errors.New("link has expired")
	ErrDenied       = errors.New("access denied")
	ErrNoChanges    = errors.New("no changes applied")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrStorage      = errors.New("storage failure")
)
