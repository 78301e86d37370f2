package storage

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Provider string `yaml:"provider"` // "ollama" or "openai"

	Ollama struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ollama"`

	OpenAI struct {
		APIKey string `yaml:"api_key,omitempty"`
		Model  string `yaml:"model"`
	} `yaml:"openai,omitempty"`

	Insights struct {
		MinEntries        int `yaml:"min_entries"`
		CorpusEntries     int `yaml:"corpus_entries"`
		ExtractionTimeout int `yaml:"extraction_timeout_seconds"`
	} `yaml:"insights"`

	Web struct {
		Addr      string `yaml:"addr"`
		JWTSecret string `yaml:"jwt_secret,omitempty"`
	} `yaml:"web,omitempty"`

	Temperatures struct {
		Extraction float64 `yaml:"extraction"`
	} `yaml:"temperatures,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Database.Path = "./undercurrent.db"
	cfg.Provider = "ollama"
	cfg.Ollama.BaseURL = "http://localhost:11434"
	cfg.Ollama.Model = "llama3"
	cfg.OpenAI.Model = "gpt-4o-mini"
	cfg.Insights.MinEntries = 5
	cfg.Insights.CorpusEntries = 30
	cfg.Insights.ExtractionTimeout = 120
	cfg.Web.Addr = ":8479"
	// Low temperature keeps extraction output stable across runs
	cfg.Temperatures.Extraction = 0.3
	return cfg
}
