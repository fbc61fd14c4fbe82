package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		ShutdownGrace int    `yaml:"shutdown_grace_seconds"`
	} `yaml:"server"`
	Upstream struct {
		BaseURL        string  `yaml:"base_url"`
		APIKeyEnv      string  `yaml:"api_key_env"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RetryDelayMs   int     `yaml:"retry_delay_ms"`
		RatePerSecond  float64 `yaml:"rate_per_second"`
		RateBurst      int     `yaml:"rate_burst"`
	} `yaml:"upstream"`
	Poll struct {
		IntervalSeconds       int `yaml:"interval_seconds"`
		BackoffBaseSeconds    int `yaml:"backoff_base_seconds"`
		BackoffCeilingSeconds int `yaml:"backoff_ceiling_seconds"`
	} `yaml:"poll"`
	Session struct {
		SendBuffer       int `yaml:"send_buffer"`
		WriteWaitSeconds int `yaml:"write_wait_seconds"`
		PongWaitSeconds  int `yaml:"pong_wait_seconds"`
	} `yaml:"session"`
	Trending struct {
		RefreshMinutes int `yaml:"refresh_minutes"`
		Limit          int `yaml:"limit"`
	} `yaml:"trending"`
	News struct {
		Enabled         bool `yaml:"enabled"`
		MaxHeadlines    int  `yaml:"max_headlines"`
		CacheMinutes    int  `yaml:"cache_minutes"`
		ScrapeTimeoutMs int  `yaml:"scrape_timeout_ms"`
	} `yaml:"news"`
	LLM struct {
		Provider    string  `yaml:"provider"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float32 `yaml:"temperature"`
		System      string  `yaml:"system"`
	} `yaml:"llm"`
}

func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url cannot be empty")
	}
	if c.Poll.IntervalSeconds <= 0 {
		return fmt.Errorf("poll.interval_seconds must be positive, got %d", c.Poll.IntervalSeconds)
	}
	if c.Poll.BackoffCeilingSeconds < c.Poll.BackoffBaseSeconds {
		return fmt.Errorf("poll.backoff_ceiling_seconds %d is below poll.backoff_base_seconds %d",
			c.Poll.BackoffCeilingSeconds, c.Poll.BackoffBaseSeconds)
	}
	if c.Session.SendBuffer <= 0 {
		return fmt.Errorf("session.send_buffer must be positive, got %d", c.Session.SendBuffer)
	}
	switch c.LLM.Provider {
	case "", "OPENAI", "CLAUDE", "NOOP":
	default:
		return fmt.Errorf("llm.provider must be 'OPENAI', 'CLAUDE', or 'NOOP', got '%s'", c.LLM.Provider)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ShutdownGrace == 0 {
		c.Server.ShutdownGrace = 10
	}
	if c.Upstream.APIKeyEnv == "" {
		c.Upstream.APIKeyEnv = "MARKET_API_KEY"
	}
	if c.Upstream.TimeoutSeconds == 0 {
		c.Upstream.TimeoutSeconds = 5
	}
	if c.Upstream.RetryDelayMs == 0 {
		c.Upstream.RetryDelayMs = 250
	}
	if c.Upstream.RatePerSecond == 0 {
		c.Upstream.RatePerSecond = 5
	}
	if c.Upstream.RateBurst == 0 {
		c.Upstream.RateBurst = 10
	}
	if c.Poll.IntervalSeconds == 0 {
		c.Poll.IntervalSeconds = 10
	}
	if c.Poll.BackoffBaseSeconds == 0 {
		c.Poll.BackoffBaseSeconds = 5
	}
	if c.Poll.BackoffCeilingSeconds == 0 {
		c.Poll.BackoffCeilingSeconds = 300
	}
	if c.Session.SendBuffer == 0 {
		c.Session.SendBuffer = 64
	}
	if c.Session.WriteWaitSeconds == 0 {
		c.Session.WriteWaitSeconds = 5
	}
	if c.Session.PongWaitSeconds == 0 {
		c.Session.PongWaitSeconds = 60
	}
	if c.Trending.RefreshMinutes == 0 {
		c.Trending.RefreshMinutes = 5
	}
	if c.Trending.Limit == 0 {
		c.Trending.Limit = 10
	}
	if c.News.MaxHeadlines == 0 {
		c.News.MaxHeadlines = 15
	}
	if c.News.CacheMinutes == 0 {
		c.News.CacheMinutes = 60
	}
	if c.News.ScrapeTimeoutMs == 0 {
		c.News.ScrapeTimeoutMs = 10000
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 512
	}
}

func (c *Config) UpstreamTimeout() time.Duration {
	return time.Duration(c.Upstream.TimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalSeconds) * time.Second
}

func (c *Config) BackoffBase() time.Duration {
	return time.Duration(c.Poll.BackoffBaseSeconds) * time.Second
}

func (c *Config) BackoffCeiling() time.Duration {
	return time.Duration(c.Poll.BackoffCeilingSeconds) * time.Second
}
