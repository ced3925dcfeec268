package storage

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Ollama struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ollama"`

	Model struct {
		Dir       string `yaml:"dir"`
		CacheDir  string `yaml:"cache_dir"`
		MinSizeMB int64  `yaml:"min_size_mb"`
	} `yaml:"model"`

	Worker struct {
		PollIntervalMS int `yaml:"poll_interval_ms"`
		PaceIntervalMS int `yaml:"pace_interval_ms"`
	} `yaml:"worker"`

	Limits struct {
		ChunkChars      int `yaml:"chunk_chars"`
		CategorizeChars int `yaml:"categorize_chars"`
	} `yaml:"limits"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./presseschau.db"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "gemma3:4b"
	cfg.Model.Dir = "./models"
	cfg.Model.CacheDir = "./models/cache"
	cfg.Model.MinSizeMB = 100
	cfg.Worker.PollIntervalMS = 2000
	cfg.Worker.PaceIntervalMS = 1500
	cfg.Limits.ChunkChars = 3000
	cfg.Limits.CategorizeChars = 2500
	return cfg
}
