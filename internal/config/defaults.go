package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8321
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/tazune/data/archive.db"
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "TAZUNE_API_KEY"
	}
	if cfg.LLM.ChatModel == "" {
		cfg.LLM.ChatModel = "gpt-4o-mini"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.LLM.MaxTokens == 0 {
		cfg.LLM.MaxTokens = 1024
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = 120
	}
	if cfg.LLM.EmbeddingCacheSize == 0 {
		cfg.LLM.EmbeddingCacheSize = 512
	}
	if cfg.Retrieval.ResultCap == 0 {
		cfg.Retrieval.ResultCap = 30
	}
	if cfg.Retrieval.SemanticThreshold == 0 {
		cfg.Retrieval.SemanticThreshold = 20
	}
	if cfg.Retrieval.SemanticLimit == 0 {
		cfg.Retrieval.SemanticLimit = 20
	}
	if cfg.Retrieval.ContextItems == 0 {
		cfg.Retrieval.ContextItems = 15
	}
	if cfg.Retrieval.HistoryLimit == 0 {
		cfg.Retrieval.HistoryLimit = 10
	}
	if cfg.Scoring.SemanticWeight == 0 {
		cfg.Scoring.SemanticWeight = 0.6
	}
	if cfg.Scoring.KeywordWeight == 0 {
		cfg.Scoring.KeywordWeight = 0.4
	}
	if cfg.Scoring.MinSemanticScore == 0 {
		cfg.Scoring.MinSemanticScore = 0.15
	}
	if cfg.Scoring.MinKeywordScore == 0 {
		cfg.Scoring.MinKeywordScore = 0.3
	}
	if cfg.Scoring.MinHybridScore == 0 {
		cfg.Scoring.MinHybridScore = 0.2
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 60
	}
}
