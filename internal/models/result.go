package models

// Match types. Filename matches rank above content matches.
const (
	MatchTypeFilename = "filename"
	MatchTypeContent  = "content"
)

// SearchResult is a single search hit. Ephemeral, produced per query.
type SearchResult struct {
	FilePath     string  `json:"file_path"`
	Title        string  `json:"title"`
	Highlight    string  `json:"highlight"`
	Rank         float64 `json:"rank"`
	MatchType    string  `json:"match_type"`
	LocationInfo string  `json:"location_info,omitempty"`
	SourceQuery  string  `json:"source_query,omitempty"`
	IsExpanded   bool    `json:"is_expanded,omitempty"`
}

// SearchResponse is the paginated response for a search request. TotalCount
// reflects the full ranked set, not just the returned page.
type SearchResponse struct {
	Results    []*SearchResult `json:"results"`
	TotalCount int             `json:"total_count"`
	HasMore    bool            `json:"has_more"`
	QueryTime  int64           `json:"query_time_ms"`
	Query      string          `json:"query"`
}

// IndexResult reports counts for a folder/path index operation.
type IndexResult struct {
	Indexed int `json:"indexed_count"`
	Total   int `json:"total_count"`
	Errors  int `json:"error_count,omitempty"`
}

// BatchResult reports counts for an incremental batch index operation.
type BatchResult struct {
	PathsProcessed  int `json:"paths_processed"`
	NewFilesIndexed int `json:"new_files_indexed"`
	TotalIndexed    int `json:"total_indexed"`
}
