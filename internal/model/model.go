// Package model defines the hook used to decrypt extracted model files.
// The cipher itself lives outside this module; extraction only needs the
// three-valued result.
package model

import (
	"io"
	"path"
	"strings"
	"sync"
)

// Result is the outcome of a decryption attempt.
type Result int

const (
	Success Result = iota
	NotEncrypted
	InvalidModel
)

func (r Result) String() string {
	switch r {
	case Success:
		return "success"
	case NotEncrypted:
		return "not encrypted"
	case InvalidModel:
		return "invalid model"
	default:
		return "unknown"
	}
}

// Decryptor decrypts a model file in place. The stream is positioned at
// the start of the file.
type Decryptor interface {
	Decrypt(f io.ReadWriteSeeker) (Result, error)
}

// DecryptorFunc adapts a function to Decryptor.
type DecryptorFunc func(f io.ReadWriteSeeker) (Result, error)

func (fn DecryptorFunc) Decrypt(f io.ReadWriteSeeker) (Result, error) { return fn(f) }

// Extension is the file extension of model entries.
const Extension = ".mdl"

// IsModelPath reports whether name has the model extension.
func IsModelPath(name string) bool {
	return strings.EqualFold(path.Ext(name), Extension)
}

var (
	mu         sync.RWMutex
	registered Decryptor
)

// Register installs the decryptor used when automatic model decryption is
// enabled. Registering nil removes it.
func Register(d Decryptor) {
	mu.Lock()
	registered = d
	mu.Unlock()
}

// Registered returns the installed decryptor, or nil.
func Registered() Decryptor {
	mu.RLock()
	defer mu.RUnlock()
	return registered
}
