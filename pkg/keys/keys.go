// Package keys derives the composite (prefix, check) join key used to match
// VIN records against decoder entries, and allocates surrogate keys.
package keys

import (
	"strings"
	"sync"
)

const (
	// PrefixLength is the number of leading characters forming key1.
	PrefixLength = 8
	// DefaultCheckOffset selects the 10th character of a record identifier.
	DefaultCheckOffset = 9
)

// Key is the composite join key: key1 is Prefix, key2 is Check.
type Key struct {
	Prefix string
	Check  string
}

func (k Key) String() string {
	return k.Prefix + "/" + k.Check
}

// Deriver extracts keys from both sides of the join. Records take the check
// character from a fixed offset of the identifier; decoder entries carry it
// in their own column.
type Deriver struct {
	checkOffset int
}

func NewDeriver(checkOffset int) Deriver {
	if checkOffset < 0 {
		checkOffset = DefaultCheckOffset
	}
	return Deriver{checkOffset: checkOffset}
}

// DefaultDeriver reads the check character at DefaultCheckOffset.
var DefaultDeriver = NewDeriver(DefaultCheckOffset)

func (d Deriver) CheckOffset() int {
	return d.checkOffset
}

// ForRecord derives the key of a VIN record. Identifiers too short to hold
// both the prefix and the check character have no key.
func (d Deriver) ForRecord(id string) (Key, bool) {
	runes := []rune(strings.TrimSpace(id))
	if len(runes) < PrefixLength || len(runes) <= d.checkOffset {
		return Key{}, false
	}
	return Key{
		Prefix: string(runes[:PrefixLength]),
		Check:  string(runes[d.checkOffset]),
	}, true
}

// ForDecoder derives the key of a decoder entry from its prefix column and
// the first character of its check column.
func (d Deriver) ForDecoder(prefixSource, checkSource string) (Key, bool) {
	prefix := []rune(strings.TrimSpace(prefixSource))
	check := []rune(strings.TrimSpace(checkSource))
	if len(prefix) < PrefixLength || len(check) == 0 {
		return Key{}, false
	}
	return Key{
		Prefix: string(prefix[:PrefixLength]),
		Check:  string(check[0]),
	}, true
}

// Sequence hands out monotonically increasing surrogate keys.
type Sequence struct {
	mu   sync.Mutex
	next int64
}

// NewSequence starts a sequence at start.
func NewSequence(start int64) *Sequence {
	return &Sequence{next: start}
}

// SequenceAfter starts a sequence right after the current maximum key.
func SequenceAfter(maxKey int64) *Sequence {
	return NewSequence(maxKey + 1)
}

func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.next
	s.next++
	return v
}

// Peek returns the value Next would hand out.
func (s *Sequence) Peek() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
