package chain

// journalEntry is a revertible state change.
type journalEntry interface {
	revert()
}

// undoFunc adapts a closure recorded by a contract into a journal entry.
type undoFunc func()

func (f undoFunc) revert() {
	f()
}

// snapshot marks a point the journal and the transaction logs can be rewound to.
type snapshot struct {
	entries int
	logs    int
}

// journal tracks state modifications for snapshot/revert.
type journal struct {
	entries []journalEntry
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) length() int {
	return len(j.entries)
}

// revertTo undoes every entry recorded after idx, newest first.
func (j *journal) revertTo(idx int) {
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert()
	}
	j.entries = j.entries[:idx]
}

func (j *journal) reset() {
	j.entries = nil
}
