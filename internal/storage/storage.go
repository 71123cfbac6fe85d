package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxFilenameBytes = 255

var (
	ErrTooLarge   = errors.New("file exceeds size limit")
	ErrExist      = fs.ErrExist
	ErrNotExist   = fs.ErrNotExist
	ErrInvalidKey = errors.New("invalid storage key")
)

// Store keeps uploaded bytes under "<session>/<filename>" keys.
type Store interface {
	// Create writes r to key, failing with ErrExist if key is taken. When more
	// than limit bytes arrive the partial output is removed and ErrTooLarge
	// is returned.
	Create(ctx context.Context, key string, r io.Reader, limit int64) (int64, error)
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Remove(ctx context.Context, key string) error
	// Location is what gets recorded as the file's path.
	Location(key string) string
	Ping(ctx context.Context) error
}

func Key(sessionID, filename string) string {
	return sessionID + "/" + filename
}

// SanitizeFilename keeps the basename's letters, digits and "._- ", capped at
// 255 bytes. Names made only of dots come back empty.
func SanitizeFilename(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			if b.Len()+utf8.RuneLen(r) > maxFilenameBytes {
				break
			}
			b.WriteRune(r)
		}
	}

	out := b.String()
	if strings.Trim(out, ".") == "" {
		return ""
	}
	return out
}

// Extension returns the lower-cased text after the last dot, or "".
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// CandidateName yields name for attempt 0 and base_N.ext afterwards.
func CandidateName(name string, attempt int) string {
	if attempt == 0 {
		return name
	}
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i:]
	}
	suffix := "_" + strconv.Itoa(attempt)
	for len(base)+len(suffix)+len(ext) > maxFilenameBytes && base != "" {
		_, size := utf8.DecodeLastRuneInString(base)
		base = base[:len(base)-size]
	}
	return base + suffix + ext
}

func validKey(key string) bool {
	session, name, ok := strings.Cut(key, "/")
	if !ok || session == "" || name == "" {
		return false
	}
	for _, part := range []string{session, name} {
		if part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return false
		}
	}
	return true
}
