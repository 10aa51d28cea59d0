package domain

// Staged is a pending whole-file (or whole-bucket) rewrite. Nothing is
// visible to readers until Commit; Discard drops the pending content.
type Staged interface {
	Commit() error
	Discard() error
}

// BlockLog is the append-only persisted log of block actions.
type BlockLog interface {
	// Load returns every readable record in write order. Corrupt records
	// are skipped, never fatal.
	Load() ([]BlockRecord, error)
	// Append adds one record unconditionally.
	Append(rec BlockRecord) error
	// StageRewrite prepares replacing the whole log with recs.
	StageRewrite(recs []BlockRecord) (Staged, error)
}

// LineList is a persisted plain list with one entry per line.
type LineList interface {
	// Load returns the entries in file order. A missing list is empty.
	Load() ([]string, error)
	// StageRewrite prepares replacing the whole list with lines.
	StageRewrite(lines []string) (Staged, error)
}
