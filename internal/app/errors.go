package app

import (
	"errors"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrMessageEmpty       = errors.New("message content is empty")
	ErrBackend            = errors.New("generation backend failed")
	ErrUnrecognizedReply  = errors.New("backend reply has an unrecognized shape")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileNotFound       = errors.New("file not found")
)

const maxSessionIDLength = 128

// normalizeSessionID trims the id and rejects values that cannot name a
// storage directory.
func normalizeSessionID(sessionID string) (string, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" || len(id) > maxSessionIDLength {
		return "", ErrInvalidSessionID
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || id == "." {
		return "", ErrInvalidSessionID
	}
	return id, nil
}
