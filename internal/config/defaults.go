package config

// DefaultExtensions are the file types eligible for indexing.
var DefaultExtensions = []string{
	".txt", ".md", ".csv", ".log", ".json",
	".pdf", ".docx", ".xlsx", ".pptx",
	".py", ".r", ".sas",
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/mitsuke/data/db/index.db"
	}
	if cfg.Storage.PostingsPath == "" {
		cfg.Storage.PostingsPath = "/usr/local/var/mitsuke/data/indices/postings"
	}
	if cfg.Index.Extensions == nil {
		cfg.Index.Extensions = DefaultExtensions
	}
	if cfg.Index.Workers == 0 {
		cfg.Index.Workers = 4
	}
	if cfg.Index.CommitBatch == 0 {
		cfg.Index.CommitBatch = 10
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 50
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 200
	}
	if cfg.Search.TitleBoost == 0 {
		cfg.Search.TitleBoost = 3.0
	}
	if cfg.Search.ExpansionWeight == 0 {
		cfg.Search.ExpansionWeight = 0.6
	}
	if cfg.Search.SnippetContext == 0 {
		cfg.Search.SnippetContext = 100
	}
	if cfg.Search.TopKCandidates == 0 {
		cfg.Search.TopKCandidates = 200
	}
	if cfg.AI.TimeoutSeconds == 0 {
		cfg.AI.TimeoutSeconds = 30
	}
	if cfg.AI.CacheSize == 0 {
		cfg.AI.CacheSize = 256
	}
}
