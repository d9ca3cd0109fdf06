package storage

// versionID is an arena index into a chain's version pool, replacing a
// raw "next" pointer per the base spec's Design Notes (§9: prefer dense
// integer ids over pointers — O(1) serialization, easy vacuum
// compaction). 0 means "no next version".
type versionID uint32

// rowVersion is one entry of a version chain. Grounded on tinySQL's
// RowVersion (internal/storage/mvcc.go: XMin/XMax/Data/NextVersion),
// reshaped so Next is an arena index instead of a pointer.
type rowVersion struct {
	xmin TxID
	xmax TxID
	data map[string]Value
	next versionID // 0 == none
}

// versionChain is the per-row-id linked list, newest-first, stored in
// an arena slice so serialization and vacuum compaction never have to
// walk live pointers.
type versionChain struct {
	rowID int64
	head  versionID // index into arena; 0 == empty (shouldn't happen once non-empty)
	arena []rowVersion
}

// newVersionChain creates a chain with a single head version.
func newVersionChain(rowID int64, xmin TxID, data map[string]Value) *versionChain {
	c := &versionChain{rowID: rowID, arena: make([]rowVersion, 1, 4)}
	// arena[0] is a sentinel (versionID 0 means "none"); real entries
	// start at index 1.
	c.arena = append(c.arena, rowVersion{xmin: xmin, data: data})
	c.head = 1
	return c
}

func (c *versionChain) at(id versionID) *rowVersion {
	if id == 0 {
		return nil
	}
	return &c.arena[id]
}

func (c *versionChain) headVersion() *rowVersion { return c.at(c.head) }

// prepend adds a new head version, returning it.
func (c *versionChain) prepend(xmin TxID, data map[string]Value) *rowVersion {
	c.arena = append(c.arena, rowVersion{xmin: xmin, data: data, next: c.head})
	c.head = versionID(len(c.arena) - 1)
	return &c.arena[len(c.arena)-1]
}

// walk calls fn for each version from head to tail; fn returning false
// stops the walk early.
func (c *versionChain) walk(fn func(*rowVersion) bool) {
	id := c.head
	for id != 0 {
		v := c.at(id)
		if !fn(v) {
			return
		}
		id = v.next
	}
}

// isVisible implements spec §4.2's three-part visibility rule.
func isVisible(v *rowVersion, snap Snapshot, clog *CommitLog) bool {
	// Own-writes: xmin==0 is the bootstrap/recovery tx id and is always
	// treated as committed (spec §4.9 step 4: tx id 0 is "unconditionally
	// visible to every snapshot").
	if v.xmin != 0 {
		if v.xmin == snap.OwnTxID {
			// fallthrough to xmax check below: we see our own writes.
		} else {
			if !clog.IsCommitted(v.xmin) {
				return false
			}
			if snap.WasActive(v.xmin) {
				return false
			}
		}
	}

	if v.xmax == 0 {
		return true
	}
	if v.xmax == snap.OwnTxID {
		return false
	}
	if !clog.IsCommitted(v.xmax) {
		return true
	}
	if snap.WasActive(v.xmax) {
		return true
	}
	return false
}

// visibleVersion walks the chain head-to-tail and returns the first
// visible version, or nil.
func (c *versionChain) visibleVersion(snap Snapshot, clog *CommitLog) *rowVersion {
	var found *rowVersion
	c.walk(func(v *rowVersion) bool {
		if isVisible(v, snap, clog) {
			found = v
			return false
		}
		return true
	})
	return found
}

// length returns the number of versions currently linked into the
// chain (used by vacuum statistics).
func (c *versionChain) length() int {
	n := 0
	c.walk(func(*rowVersion) bool { n++; return true })
	return n
}

// vacuum prunes versions whose xmax is committed and less than
// minVisibleTxID (spec §4.3 vacuum): no present or future snapshot can
// still need them. Returns the number of versions removed.
func (c *versionChain) vacuum(minVisibleTxID TxID, clog *CommitLog) int {
	removed := 0
	// Walk with a "previous" pointer so we can splice dead nodes out.
	var prevID versionID
	id := c.head
	for id != 0 {
		v := &c.arena[id]
		nextID := v.next
		prunable := v.xmax != 0 && clog.IsCommitted(v.xmax) && v.xmax < minVisibleTxID
		if prunable {
			if prevID == 0 {
				c.head = nextID
			} else {
				c.arena[prevID].next = nextID
			}
			removed++
			// The chain's live tail (the oldest surviving version) is
			// always kept even if individually prunable by this rule,
			// because once it is unlinked there is nothing underneath it
			// for the chain to fall back to. We only prune a version if
			// it is not also the sole remaining version.
			if c.head == 0 {
				// Don't fully empty the chain: relink this version as the
				// new head so a future reader always has something to
				// walk, mirroring "live visible versions are never
				// removed" (spec §8 property 10) even though this one's
				// writer and deleter both committed a long time ago — an
				// empty chain is a different thing from a deleted row and
				// the table layer distinguishes them by row-id presence,
				// not by chain emptiness.
				c.head = id
				v.next = 0
				removed--
			}
		} else {
			prevID = id
		}
		id = nextID
	}
	return removed
}
