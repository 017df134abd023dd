// Package lz implements the archive's LZ77-family payload codec: a sliding
// dictionary window with per-byte hash chains, a greedy compressor that
// emits literal runs and back-references, and the matching decompressor.
package lz

import (
	"fmt"
	"strings"
)

// Level selects the window, hash table and lookahead sizes used by the
// compressor. The compressed format does not record the level.
type Level int

const (
	Fastest Level = iota
	Fast
	Normal
	Slow
	Slowest
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = Normal

// MaxWindowSize is the largest dictionary any level uses. The decompressor
// always keeps this much history so it can decode output from every level.
const MaxWindowSize = 8192

type levelParams struct {
	dictSize  int
	hashSize  int
	lookahead int
}

var levels = [...]levelParams{
	Fastest: {512, 512, 16},
	Fast:    {1024, 1024, 32},
	Normal:  {2048, 2048, 64},
	Slow:    {4096, 4096, 128},
	Slowest: {8192, 8192, 264},
}

var levelNames = [...]string{
	Fastest: "fastest",
	Fast:    "fast",
	Normal:  "normal",
	Slow:    "slow",
	Slowest: "slowest",
}

func (l Level) valid() bool {
	return l >= Fastest && l <= Slowest
}

func (l Level) params() levelParams {
	if !l.valid() {
		return levels[DefaultLevel]
	}
	return levels[l]
}

// DictionarySize returns the window capacity for the level.
func (l Level) DictionarySize() int { return l.params().dictSize }

// HashSize returns the hash chain cap for the level.
func (l Level) HashSize() int { return l.params().hashSize }

// LookaheadSize returns the lookahead buffer size, which is also the
// longest match the level can emit.
func (l Level) LookaheadSize() int { return l.params().lookahead }

func (l Level) String() string {
	if !l.valid() {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// ParseLevel converts a level name such as "normal" into a Level.
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown compression level %q (valid: %s)", s, strings.Join(levelNames[:], ", "))
}
