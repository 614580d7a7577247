package storage

import (
	"github.com/bobboyms/reldb/pkg/btree"
	"github.com/bobboyms/reldb/pkg/types"
)

// Cursor walks a B+Tree leaf chain in key order, holding a read lock on
// whichever leaf it currently sits on.
type Cursor struct {
	tree         *btree.BPlusTree
	currentNode  *btree.Node
	currentIndex int
}

// Close releases the lock held on the current leaf, if any.
func (c *Cursor) Close() {
	if c.currentNode != nil {
		c.currentNode.RUnlock()
		c.currentNode = nil
	}
}

func (c *Cursor) Key() types.Comparable { return c.currentNode.Keys[c.currentIndex] }
func (c *Cursor) Value() int64          { return c.currentNode.DataPtrs[c.currentIndex] }
func (c *Cursor) Valid() bool           { return c.currentNode != nil && c.currentIndex < c.currentNode.N }

// Seek positions the cursor at key, or at the next key greater than it.
func (c *Cursor) Seek(key types.Comparable) {
	c.Close()

	// FindLeafLowerBound returns the leaf already read-locked (latch
	// crabbing); we keep that lock for the cursor's lifetime.
	leaf, idx := c.tree.FindLeafLowerBound(key)

	if leaf == nil {
		c.currentNode = nil
		c.currentIndex = 0
		return
	}

	if idx >= leaf.N {
		// The lower bound fell past this leaf's last entry; hop forward,
		// skipping any leaves splits have left empty.
		nextLeaf := leaf.Next

		if nextLeaf != nil {
			nextLeaf.RLock() // lock coupling: acquire before releasing
			leaf.RUnlock()
			leaf = nextLeaf
			idx = 0
			for leaf != nil && leaf.N == 0 {
				next := leaf.Next
				if next != nil {
					next.RLock()
				}
				leaf.RUnlock()
				leaf = next
				idx = 0
			}
		} else {
			leaf.RUnlock()
			c.currentNode = nil
			return
		}
	}

	if leaf == nil {
		c.currentNode = nil
		return
	}

	c.currentNode = leaf
	c.currentIndex = idx
}

// Next advances to the following entry, crossing into the next leaf via
// lock coupling when the current one is exhausted. Reports false once
// the traversal runs off the end of the chain.
func (c *Cursor) Next() bool {
	if c.currentNode == nil {
		return false
	}

	if c.currentIndex+1 < c.currentNode.N {
		c.currentIndex++
		return true
	}

	nextLeaf := c.currentNode.Next
	if nextLeaf != nil {
		nextLeaf.RLock()
	}
	c.currentNode.RUnlock()
	c.currentNode = nextLeaf
	c.currentIndex = 0

	for c.currentNode != nil && c.currentNode.N == 0 {
		next := c.currentNode.Next
		if next != nil {
			next.RLock()
		}
		c.currentNode.RUnlock()
		c.currentNode = next
		c.currentIndex = 0
	}

	return c.currentNode != nil
}
