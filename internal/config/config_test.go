package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

var allKeys = []string{
	"TELEGRAM_BOT_TOKEN", "NOTIFY_CHAT_ID", "NOTIFY_LIVE", "DATABASE_PATH",
	"LOG_LEVEL", "BROWSER_PATH", "LISTING_URL_PREFIX", "SKIP_KEYS", "ALLOWED_USERS",
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		want    *Config
		wantErr bool
	}{
		{
			name:    "missing token",
			env:     map[string]string{"NOTIFY_CHAT_ID": "100"},
			wantErr: true,
		},
		{
			name:    "missing chat id",
			env:     map[string]string{"TELEGRAM_BOT_TOKEN": "tok"},
			wantErr: true,
		},
		{
			name: "required only, defaults applied",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "test-token",
				"NOTIFY_CHAT_ID":     "100",
			},
			want: &Config{
				TelegramBotToken: "test-token",
				NotifyChatID:     100,
				Live:             true,
				DatabasePath:     "./data/watcher.db",
				LogLevel:         "info",
				ListingURLPrefix: "https://cars.ksl.com/listing/",
				SkipKeys:         []string{"viewtype", "sort", "page", "perpage"},
				AllowedUsers:     nil,
			},
		},
		{
			name: "all values set",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_CHAT_ID":     "-42",
				"NOTIFY_LIVE":        "false",
				"DATABASE_PATH":      "/tmp/watcher.db",
				"LOG_LEVEL":          "debug",
				"BROWSER_PATH":       "/usr/bin/chromium",
				"LISTING_URL_PREFIX": "https://classifieds.example.com/item/",
				"SKIP_KEYS":          "Sort, Page",
				"ALLOWED_USERS":      "111,222,333",
			},
			want: &Config{
				TelegramBotToken: "tok",
				NotifyChatID:     -42,
				Live:             false,
				DatabasePath:     "/tmp/watcher.db",
				LogLevel:         "debug",
				BrowserPath:      "/usr/bin/chromium",
				ListingURLPrefix: "https://classifieds.example.com/item/",
				SkipKeys:         []string{"sort", "page"},
				AllowedUsers:     []int64{111, 222, 333},
			},
		},
		{
			name: "invalid chat id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_CHAT_ID":     "abc",
			},
			wantErr: true,
		},
		{
			name: "invalid live flag",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_CHAT_ID":     "100",
				"NOTIFY_LIVE":        "maybe",
			},
			wantErr: true,
		},
		{
			name: "invalid user id",
			env: map[string]string{
				"TELEGRAM_BOT_TOKEN": "tok",
				"NOTIFY_CHAT_ID":     "100",
				"ALLOWED_USERS":      "123,abc",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear relevant env vars
			for _, key := range allKeys {
				t.Setenv(key, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListingURL(t *testing.T) {
	cfg := &Config{ListingURLPrefix: "https://cars.ksl.com/listing/"}
	got := cfg.ListingURL("6512345")
	want := "https://cars.ksl.com/listing/6512345"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListingURL mismatch (-want +got):\n%s", diff)
	}
}

func TestIsSkipKey(t *testing.T) {
	cfg := &Config{SkipKeys: []string{"sort", "page"}}

	tests := []struct {
		key  string
		want bool
	}{
		{"sort", true},
		{"Sort", true},
		{"page", true},
		{"make", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := cfg.IsSkipKey(tt.key); got != tt.want {
			t.Errorf("IsSkipKey(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestIsUserAllowed(t *testing.T) {
	tests := []struct {
		name         string
		allowedUsers []int64
		userID       int64
		want         bool
	}{
		{
			name:         "empty list allows everyone",
			allowedUsers: nil,
			userID:       42,
			want:         true,
		},
		{
			name:         "user in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       20,
			want:         true,
		},
		{
			name:         "user not in list",
			allowedUsers: []int64{10, 20, 30},
			userID:       99,
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{AllowedUsers: tt.allowedUsers}
			got := cfg.IsUserAllowed(tt.userID)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("IsUserAllowed() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
