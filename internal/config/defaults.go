package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 28
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/logsentry/data/db/baseline.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/logsentry/data/indices/bleve"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		if cfg.Embedding.Provider == "azure" {
			cfg.Embedding.APIKeyEnv = "AZURE_OPENAI_API_KEY"
		} else {
			cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if cfg.Embedding.AzureAPIVersion == "" {
		cfg.Embedding.AzureAPIVersion = "2024-02-15-preview"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.Retry.MaxRetries == 0 {
		cfg.Embedding.Retry.MaxRetries = 3
	}
	if cfg.Embedding.Retry.InitialInterval == 0 {
		cfg.Embedding.Retry.InitialInterval = 500 * time.Millisecond
	}
	if cfg.Embedding.Retry.MaxInterval == 0 {
		cfg.Embedding.Retry.MaxInterval = 10 * time.Second
	}
	if cfg.Embedding.Breaker.ConsecutiveFailures == 0 {
		cfg.Embedding.Breaker.ConsecutiveFailures = 5
	}
	if cfg.Embedding.Breaker.OpenTimeout == 0 {
		cfg.Embedding.Breaker.OpenTimeout = 30 * time.Second
	}

	if cfg.Index.Type == "" {
		cfg.Index.Type = "memory"
	}
	osc := &cfg.Index.OpenSearch
	if len(osc.Addresses) == 0 {
		osc.Addresses = []string{"http://localhost:9200"}
	}
	if osc.PasswordEnv == "" {
		osc.PasswordEnv = "OPENSEARCH_PASSWORD"
	}
	if osc.IndexName == "" {
		osc.IndexName = "security-logs-knn"
	}
	if osc.VectorField == "" {
		osc.VectorField = "log_vector"
	}
	if osc.TextField == "" {
		osc.TextField = "log_text"
	}
	if osc.CategoryField == "" {
		osc.CategoryField = "category"
	}
	if osc.SpaceType == "" {
		osc.SpaceType = "l2"
	}
	if osc.Engine == "" {
		osc.Engine = "faiss"
	}
	if osc.EFSearch == 0 {
		osc.EFSearch = 100
	}

	if cfg.Detection.K == 0 {
		cfg.Detection.K = 5
	}
	if cfg.Detection.ScoreMethod == "" {
		cfg.Detection.ScoreMethod = "kth"
	}
	if cfg.Detection.PrintTop == 0 {
		cfg.Detection.PrintTop = 5
	}
	if cfg.Detection.FallbackThreshold == 0 {
		cfg.Detection.FallbackThreshold = 0.35
	}

	if cfg.Calibration.SampleSize == 0 {
		cfg.Calibration.SampleSize = 200
	}
	if cfg.Calibration.Quantile == 0 {
		cfg.Calibration.Quantile = 0.95
	}
	if cfg.Calibration.Seed == 0 {
		cfg.Calibration.Seed = 42
	}
	if cfg.Calibration.Workers == 0 {
		cfg.Calibration.Workers = 4
	}
	if cfg.Calibration.QueryTimeout == 0 {
		cfg.Calibration.QueryTimeout = 10 * time.Second
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".log", ".txt", ".csv", ".xlsx", ".ods", ".pdf", ".docx"}
	}
	if cfg.Watch.Category == "" {
		cfg.Watch.Category = "default"
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
