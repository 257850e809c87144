// Package bitmap implements the two-tier priority bitmap index: an O(1)
// "is any priority ready, and if so which is
// highest" index per scheduling domain.
package bitmap

import (
	"math/bits"

	"github.com/sel4kernel/taskcore/internal/kassert"
)

const wordRadix = 6 // log2(64): bits of priority routed to the L2 word index
const wordBits = 1 << wordRadix
const wordMask = wordBits - 1

// L2Size returns the number of L2 words needed to index numPriorities
// priorities, i.e. ceil(numPriorities / 64).
func L2Size(numPriorities int) int {
	return (numPriorities + wordMask) / wordBits
}

// Index is a per-domain two-tier bitmap: one L1 word, and L2Size L2 words.
// The zero value is a valid empty index once L2 is sized via NewIndex.
type Index struct {
	l1 uint64
	l2 []uint64
}

// NewIndex allocates an Index sized for numPriorities priorities.
func NewIndex(numPriorities int) *Index {
	return &Index{l2: make([]uint64, L2Size(numPriorities))}
}

func l1index(prio int) int     { return prio >> wordRadix }
func invertL1(l1, size int) int { return size - 1 - l1 }

// Add marks priority prio as having a non-empty ready queue.
func (idx *Index) Add(prio int) {
	l1 := l1index(prio)
	inv := invertL1(l1, len(idx.l2))
	kassert.Invariant(inv >= 0 && inv < len(idx.l2), "bitmap: priority %d out of range for %d L2 words", prio, len(idx.l2))
	idx.l1 |= 1 << uint(l1)
	idx.l2[inv] |= 1 << uint(prio&wordMask)
}

// Remove clears priority prio's ready bit. Safe to call when the bit is
// already clear.
func (idx *Index) Remove(prio int) {
	l1 := l1index(prio)
	inv := invertL1(l1, len(idx.l2))
	kassert.Invariant(inv >= 0 && inv < len(idx.l2), "bitmap: priority %d out of range for %d L2 words", prio, len(idx.l2))
	idx.l2[inv] &^= 1 << uint(prio&wordMask)
	if idx.l2[inv] == 0 {
		idx.l1 &^= 1 << uint(l1)
	}
}

// Empty reports whether no priority is marked ready in this domain.
func (idx *Index) Empty() bool { return idx.l1 == 0 }

// Highest returns the highest ready priority in this domain. Callers must
// check Empty first; calling Highest on an empty index is a core bug.
func (idx *Index) Highest() int {
	kassert.Assert(idx.l1 != 0, "bitmap: Highest called on empty index")
	l1 := wordBits - 1 - bits.LeadingZeros64(idx.l1)
	inv := invertL1(l1, len(idx.l2))
	word := idx.l2[inv]
	kassert.Invariant(word != 0, "bitmap: L2 word %d empty despite L1 bit %d set", inv, l1)
	l2 := wordBits - 1 - bits.LeadingZeros64(word)
	return (l1 << wordRadix) | l2
}

// IsHighest reports whether prio is (tied for) the highest ready priority
// in this domain: true if nothing is ready, or prio is at least as high as
// the current highest.
func (idx *Index) IsHighest(prio int) bool {
	return idx.Empty() || prio >= idx.Highest()
}

// Count returns the number of priorities currently marked ready in this
// domain. Intended for metrics/introspection.
func (idx *Index) Count() int {
	n := 0
	for _, w := range idx.l2 {
		n += bits.OnesCount64(w)
	}
	return n
}
