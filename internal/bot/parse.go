package bot

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// AddArgs holds the parsed arguments of the /add command.
type AddArgs struct {
	Name         string
	URL          string
	EveryMinutes int
}

// ParseAddArgs parses arguments for /add.
// Format: <name> | <url> [| <minutes>]
func ParseAddArgs(args string) (AddArgs, error) {
	parts := strings.Split(args, "|")
	if len(parts) < 2 {
		return AddArgs{}, fmt.Errorf("usage: /add <name> | <url> [| <minutes>]")
	}

	name := strings.TrimSpace(parts[0])
	if name == "" {
		return AddArgs{}, fmt.Errorf("search name cannot be empty")
	}

	rawURL := strings.TrimSpace(parts[1])
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return AddArgs{}, fmt.Errorf("invalid search URL %q", rawURL)
	}

	every := 5
	if len(parts) >= 3 {
		raw := strings.TrimSpace(parts[2])
		every, err = strconv.Atoi(raw)
		if err != nil || every < 1 || every > 60 {
			return AddArgs{}, fmt.Errorf("interval must be between 1 and 60 minutes")
		}
	}

	return AddArgs{Name: name, URL: rawURL, EveryMinutes: every}, nil
}

// FilterArgs holds the parsed arguments of a filter command.
type FilterArgs struct {
	SearchID int64
	Value    string
}

// ParseFilterCommand parses arguments for /include, /exclude, etc.
// Format: <search_id> <value...>
func ParseFilterCommand(args string) (FilterArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return FilterArgs{}, fmt.Errorf("usage: <search_id> <value>")
	}

	searchID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return FilterArgs{}, fmt.Errorf("invalid search ID %q", parts[0])
	}

	return FilterArgs{
		SearchID: searchID,
		Value:    strings.Join(parts[1:], " "),
	}, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("search ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid search ID %q", s)
	}
	return id, nil
}

// ParseIntervalArgs extracts a search ID and interval in minutes.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /interval <id> <minutes>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid search ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 1 || mins > 60 {
		return 0, 0, fmt.Errorf("interval must be between 1 and 60 minutes")
	}
	return id, mins, nil
}
