// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds the application configuration.
type Config struct {
	TelegramBotToken string
	NotifyChatID     int64
	// Live gates outbound notifications. When false, notification calls
	// log intent and are otherwise no-ops.
	Live             bool
	DatabasePath     string
	LogLevel         string
	BrowserPath      string
	ListingURLPrefix string
	// SkipKeys are query-string parameters hidden from search URL previews.
	SkipKeys     []string
	AllowedUsers []int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	rawChat := os.Getenv("NOTIFY_CHAT_ID")
	if rawChat == "" {
		return nil, fmt.Errorf("NOTIFY_CHAT_ID is required")
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NOTIFY_CHAT_ID %q: %w", rawChat, err)
	}

	live := true
	if raw := os.Getenv("NOTIFY_LIVE"); raw != "" {
		live, err = strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid NOTIFY_LIVE %q: %w", raw, err)
		}
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/watcher.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	prefix := os.Getenv("LISTING_URL_PREFIX")
	if prefix == "" {
		prefix = "https://cars.ksl.com/listing/"
	}

	skipKeys := []string{"viewtype", "sort", "page", "perpage"}
	if raw := os.Getenv("SKIP_KEYS"); raw != "" {
		skipKeys = nil
		for _, s := range strings.Split(raw, ",") {
			s = strings.ToLower(strings.TrimSpace(s))
			if s != "" {
				skipKeys = append(skipKeys, s)
			}
		}
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	return &Config{
		TelegramBotToken: token,
		NotifyChatID:     chatID,
		Live:             live,
		DatabasePath:     dbPath,
		LogLevel:         logLevel,
		BrowserPath:      os.Getenv("BROWSER_PATH"),
		ListingURLPrefix: prefix,
		SkipKeys:         skipKeys,
		AllowedUsers:     allowedUsers,
	}, nil
}

// ListingURL returns the detail page URL for a listing identifier.
func (c *Config) ListingURL(listingID string) string {
	return c.ListingURLPrefix + listingID
}

// IsSkipKey reports whether a query parameter is hidden from previews.
func (c *Config) IsSkipKey(key string) bool {
	key = strings.ToLower(key)
	for _, k := range c.SkipKeys {
		if k == key {
			return true
		}
	}
	return false
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.AllowedUsers) == 0 {
		return true
	}
	for _, id := range c.AllowedUsers {
		if id == userID {
			return true
		}
	}
	return false
}
