// Package models defines core data structures for scopes, indexed files,
// fragments, queries, and search results.
package models

import "time"

// Scope kinds.
const (
	ScopeKindFolder = "folder"
	ScopeKindFile   = "file"
)

// Scope is a user-registered root (folder or single file) eligible for indexing.
type Scope struct {
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// File index statuses stored in the files table.
const (
	FileStatusIndexed = 1
	FileStatusError   = 2
)

// IndexedFile is one physical file under an active scope. LastModified and
// Size are the change-detection keys used to skip unchanged files during
// incremental indexing; ContentHash is kept for integrity checks on rebuild.
type IndexedFile struct {
	Path         string    `json:"file_path"`
	Title        string    `json:"title"`
	ScopePath    string    `json:"scope_path,omitempty"`
	LastModified int64     `json:"last_modified"`
	Size         int64     `json:"file_size"`
	ContentHash  string    `json:"content_hash,omitempty"`
	FileType     string    `json:"file_type"`
	Status       int       `json:"status"`
	ErrorMessage string    `json:"error_message,omitempty"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Fragment is a unit of extracted text with a human-readable location tag
// (e.g. "Sheet:Q3, Row:12, Col:2"). Fragments are persisted alongside the
// postings so highlighting can re-derive context without re-parsing the file.
type Fragment struct {
	FilePath string `json:"file_path"`
	Index    int    `json:"index"`
	Location string `json:"location"`
	Text     string `json:"text"`
}

// Index status values reported by Status queries.
const (
	IndexStatusIndexed    = "indexed"
	IndexStatusNotIndexed = "not_indexed"
	IndexStatusIndexing   = "indexing"
)

// IndexStatus is the derived per-path view computed from IndexedFile
// membership under a path prefix. Never stored.
type IndexStatus struct {
	Path         string `json:"path"`
	Status       string `json:"status"`
	IndexedCount int    `json:"indexed_count"`
}

// RecentFile is a recently indexed/modified file entry.
type RecentFile struct {
	FilePath     string `json:"file_path"`
	Title        string `json:"title"`
	LastModified int64  `json:"last_modified"`
	FileType     string `json:"file_type"`
}

// Suggestion types.
const (
	SuggestionTypeFilename = "filename"
	SuggestionTypeContent  = "content"
)

// Suggestion is an autocomplete candidate derived from the index.
type Suggestion struct {
	Text    string `json:"text"`
	Type    string `json:"type"`
	Source  string `json:"source"`
	Preview string `json:"preview,omitempty"`
}
