package lz

import (
	"fmt"

	"github.com/jchantrell/nartool/internal/errdefs"
)

// MinMatch is the shortest back-reference the codec emits.
const MinMatch = 3

const nilSlot = -1

// Window is a fixed-capacity circular history of the most recent bytes of a
// stream. Positions holding each byte value are threaded onto a chain
// (oldest to newest) so FindLongestMatch only visits candidates that share
// the leading byte. Chains are index arrays over ring slots, not nodes.
type Window struct {
	data   []byte
	cursor int // next slot to write
	length int // logical length, <= len(data)

	// match index; nil slices when the window is decode-only
	hashSize int
	head     [256]int
	tail     [256]int
	count    [256]int
	prev     []int
	next     []int
	linked   []bool
}

// NewWindow returns an empty window holding up to capacity bytes. Each
// byte value's chain is capped at hashSize positions; a hashSize of zero
// disables the match index, which is all a decoder needs.
func NewWindow(capacity, hashSize int) *Window {
	if capacity <= 0 {
		panic(fmt.Sprintf("lz: invalid window capacity %d", capacity))
	}
	w := &Window{
		data:     make([]byte, capacity),
		hashSize: hashSize,
	}
	if hashSize > 0 {
		w.prev = make([]int, capacity)
		w.next = make([]int, capacity)
		w.linked = make([]bool, capacity)
		w.resetIndex()
	}
	return w
}

// Len returns the number of bytes of history currently held.
func (w *Window) Len() int { return w.length }

// Cap returns the window capacity.
func (w *Window) Cap() int { return len(w.data) }

// Reset empties the window.
func (w *Window) Reset() {
	w.cursor = 0
	w.length = 0
	if w.indexed() {
		w.resetIndex()
	}
}

func (w *Window) indexed() bool { return w.hashSize > 0 }

func (w *Window) resetIndex() {
	for i := range w.head {
		w.head[i] = nilSlot
		w.tail[i] = nilSlot
		w.count[i] = 0
	}
	for i := range w.linked {
		w.prev[i] = nilSlot
		w.next[i] = nilSlot
		w.linked[i] = false
	}
}

// link threads slot onto the tail of its byte value's chain, evicting the
// chain's oldest member when the cap is exceeded.
func (w *Window) link(slot int) {
	b := w.data[slot]
	last := w.tail[b]
	w.prev[slot] = last
	w.next[slot] = nilSlot
	if last != nilSlot {
		w.next[last] = slot
	} else {
		w.head[b] = slot
	}
	w.tail[b] = slot
	w.linked[slot] = true
	w.count[b]++

	if w.count[b] > w.hashSize {
		w.unlink(w.head[b])
	}
}

// unlink removes slot from the chain of the value it currently holds.
func (w *Window) unlink(slot int) {
	if !w.linked[slot] {
		return
	}
	b := w.data[slot]
	p, n := w.prev[slot], w.next[slot]
	if p != nilSlot {
		w.next[p] = n
	} else {
		w.head[b] = n
	}
	if n != nilSlot {
		w.prev[n] = p
	} else {
		w.tail[b] = p
	}
	w.prev[slot] = nilSlot
	w.next[slot] = nilSlot
	w.linked[slot] = false
	w.count[b]--
}

// Append writes one byte at the cursor and advances it.
func (w *Window) Append(b byte) {
	slot := w.cursor
	if w.indexed() {
		w.unlink(slot)
	}
	w.data[slot] = b
	if w.indexed() {
		w.link(slot)
	}

	w.cursor++
	if w.cursor == len(w.data) {
		w.cursor = 0
	}
	if w.length < len(w.data) {
		w.length++
	}
}

// AppendBytes appends p. When p is at least as long as the window, the
// window is replaced by the last Cap() bytes of p and the index rebuilt.
func (w *Window) AppendBytes(p []byte) {
	capacity := len(w.data)
	if len(p) < capacity {
		for _, b := range p {
			w.Append(b)
		}
		return
	}

	copy(w.data, p[len(p)-capacity:])
	w.cursor = 0
	w.length = capacity
	if w.indexed() {
		w.resetIndex()
		for slot := 0; slot < capacity; slot++ {
			w.link(slot)
		}
	}
}

// slotAt returns the ring slot holding the byte dist positions behind the
// cursor. dist must already be validated.
func (w *Window) slotAt(dist int) int {
	slot := w.cursor - dist
	if slot < 0 {
		slot += len(w.data)
	}
	return slot
}

// distanceOf is the inverse of slotAt.
func (w *Window) distanceOf(slot int) int {
	d := w.cursor - slot
	if d <= 0 {
		d += len(w.data)
	}
	return d
}

func (w *Window) checkDistance(dist int) error {
	if dist <= 0 || dist > w.length {
		return fmt.Errorf("%w: distance %d outside window of %d bytes", errdefs.ErrRange, dist, w.length)
	}
	return nil
}

// GetAndAdvance returns the byte dist positions behind the cursor and
// appends it to the window.
func (w *Window) GetAndAdvance(dist int) (byte, error) {
	if err := w.checkDistance(dist); err != nil {
		return 0, err
	}
	b := w.data[w.slotAt(dist)]
	w.Append(b)
	return b, nil
}

// CopyAndAdvance replays count bytes starting dist positions behind the
// cursor, appending each one to both the window and dst. Because every
// copied byte joins the history before the next read, a distance shorter
// than count repeats the last dist bytes.
func (w *Window) CopyAndAdvance(dst []byte, dist, count int) ([]byte, error) {
	if err := w.checkDistance(dist); err != nil {
		return dst, err
	}
	if count < 0 {
		return dst, fmt.Errorf("%w: negative copy length %d", errdefs.ErrRange, count)
	}
	for i := 0; i < count; i++ {
		b := w.data[w.slotAt(dist)]
		w.Append(b)
		dst = append(dst, b)
	}
	return dst, nil
}

// FindLongestMatch searches the window for the longest prefix of p. It
// walks the chain for p[0] from the newest position to the oldest, keeping
// the first candidate of any given length. A match may run past the cursor,
// in which case it repeats itself with period equal to its distance. It
// returns (0, 0) when nothing of at least MinMatch bytes is found.
func (w *Window) FindLongestMatch(p []byte) (length, distance int) {
	if !w.indexed() || len(p) == 0 || w.length == 0 {
		return 0, 0
	}

	for slot := w.tail[p[0]]; slot != nilSlot; slot = w.prev[slot] {
		d := w.distanceOf(slot)
		n := w.matchLen(d, p)
		if n > length {
			length, distance = n, d
			if n == len(p) {
				break
			}
		}
	}

	if length < MinMatch {
		return 0, 0
	}
	return length, distance
}

// matchLen counts how many leading bytes of p a back-reference at dist
// would reproduce.
func (w *Window) matchLen(dist int, p []byte) int {
	capacity := len(w.data)
	src := w.slotAt(dist)
	n := 0
	for n < len(p) {
		var want byte
		if n < dist {
			want = w.data[src]
			src++
			if src == capacity {
				src = 0
			}
		} else {
			want = p[n-dist]
		}
		if want != p[n] {
			break
		}
		n++
	}
	return n
}
