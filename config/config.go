// Package config loads environment variables and provides a typed Config used across the service.
// It applies sensible defaults so the binary can run locally with minimal setup.
// The bot token is the one mandatory credential; use ValidateBotReady before starting the transport.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Telegram
	TelegramBotToken string

	// Uploads
	MaxUploadBytes int64

	// Storage
	DataDir string

	// Pipeline
	FFmpegPath   string
	MergeTimeout time.Duration

	// Watermark overlays
	WatermarkText     string
	WatermarkTopText  string
	WatermarkFontFile string
	WatermarkFontSize int
	WatermarkColor    string
	WatermarkPosition string
}

const (
	// DefaultMaxUploadMB is the declared-size ceiling for a single upload.
	// Telegram bots cannot download files above 50 MB anyway.
	DefaultMaxUploadMB = 50

	// DefaultMergeTimeout bounds a single ffmpeg invocation.
	DefaultMergeTimeout = 10 * time.Minute
)

// Load reads environment variables and applies defaults. It doesn't fail if the bot token is
// missing; use ValidateBotReady() when you require the Telegram transport. Watermark settings
// all have working defaults matching the stock overlay.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")

	maxMB := DefaultMaxUploadMB
	if s := os.Getenv("MAX_UPLOAD_MB"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MAX_UPLOAD_MB %q: positive integer required", s)
		}
		maxMB = n
	}
	cfg.MaxUploadBytes = int64(maxMB) * 1024 * 1024

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	cfg.FFmpegPath = os.Getenv("FFMPEG_PATH")
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}

	cfg.MergeTimeout = DefaultMergeTimeout
	if s := os.Getenv("MERGE_TIMEOUT"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid MERGE_TIMEOUT %q: positive duration required", s)
		}
		cfg.MergeTimeout = d
	}

	cfg.WatermarkText = os.Getenv("WATERMARK_TEXT")
	if cfg.WatermarkText == "" {
		cfg.WatermarkText = "Insta / Telegram - @supplywalah"
	}
	cfg.WatermarkTopText = os.Getenv("WATERMARK_TOP_TEXT")
	if cfg.WatermarkTopText == "" {
		cfg.WatermarkTopText = "Supplywalah@proton.me"
	}
	cfg.WatermarkFontFile = os.Getenv("WATERMARK_FONT_FILE")
	if cfg.WatermarkFontFile == "" {
		// Default font on many Linux distros
		cfg.WatermarkFontFile = "/usr/share/fonts/truetype/dejavu/DejaVuSans-Bold.ttf"
	}
	cfg.WatermarkFontSize = 20
	if s := os.Getenv("WATERMARK_FONT_SIZE"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid WATERMARK_FONT_SIZE %q: positive integer required", s)
		}
		cfg.WatermarkFontSize = n
	}
	cfg.WatermarkColor = os.Getenv("WATERMARK_COLOR")
	if cfg.WatermarkColor == "" {
		cfg.WatermarkColor = "white"
	}
	cfg.WatermarkPosition = os.Getenv("WATERMARK_POSITION")
	if cfg.WatermarkPosition == "" {
		cfg.WatermarkPosition = "bottom-right"
	}

	return cfg, nil
}

// ValidateBotReady checks required fields for the Telegram transport. There is deliberately
// no fallback token: a missing TELEGRAM_BOT_TOKEN must fail startup, not silently reuse a
// baked-in credential.
func (c *Config) ValidateBotReady() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("missing telegram env: require TELEGRAM_BOT_TOKEN")
	}
	return nil
}
