// Package errdefs holds the error classes shared by the archive packages.
// Errors returned by the codec and container code wrap one of these, so
// callers classify failures with errors.Is.
package errdefs

import "errors"

var (
	// ErrFormat is returned when a container is structurally invalid: bad
	// signature, unsupported version, or a directory that does not parse.
	ErrFormat = errors.New("nar: invalid archive format")

	// ErrCorruptStream is returned when a compressed payload cannot be
	// decoded, such as a back-reference beyond the window or a truncated token.
	ErrCorruptStream = errors.New("nar: corrupt stream")

	// ErrRange is returned for out-of-bounds offsets, distances and writes.
	ErrRange = errors.New("nar: out of range")

	// ErrChecksumMismatch is returned when stored bytes fail CRC-32 verification.
	ErrChecksumMismatch = errors.New("nar: checksum mismatch")
)
