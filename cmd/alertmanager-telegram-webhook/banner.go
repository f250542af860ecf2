package main

import (
	"fmt"
	"io"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/config"
	"github.com/aria3ppp/alertmanager-telegram-webhook/internal/telegram"
)

const (
	boxInnerWidth = 64
	configValueAt = 24 // column where config values start
)

// padCenter returns s centered in a string of length width, padded with spaces.
func padCenter(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	pad := width - len(s)
	left := pad / 2
	right := pad - left
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", right)
}

// boxLine returns a box line with s centered between the vertical borders.
func boxLine(s string) string {
	return "║" + padCenter(s, boxInnerWidth) + "║"
}

// configLine returns a config line with label and value, value aligned at configValueAt.
// Uses rune count for padding so multi-byte characters (e.g. •) don't break alignment.
func configLine(label, value string) string {
	prefix := "    • " + label + ":"
	prefixWidth := utf8.RuneCountInString(prefix)
	pad := max(1, configValueAt-prefixWidth)
	return prefix + strings.Repeat(" ", pad) + value
}

// printBanner writes startup information to w. Secrets are never printed.
func printBanner(w io.Writer, addr string, cfg *config.Config) {
	mode := cfg.Telegram.ParseMode
	if parsed, err := telegram.ParseParseMode(mode); err == nil && parsed == telegram.ParseModeNone {
		mode = "none (plain text)"
	}

	lines := []string{
		"",
		"╔" + strings.Repeat("═", boxInnerWidth) + "╗",
		boxLine(AppName),
		boxLine(AppDescription),
		"╚" + strings.Repeat("═", boxInnerWidth) + "╝",
		"",
		fmt.Sprintf("  Version:        %s", Version),
		fmt.Sprintf("  Go version:     %s", runtime.Version()),
		fmt.Sprintf("  OS/Arch:        %s/%s", runtime.GOOS, runtime.GOARCH),
		"",
		"  Configuration:",
		configLine("Chat ID", cfg.Telegram.ChatID),
		configLine("Parse mode", mode),
		configLine("Send timeout", cfg.Telegram.Timeout.String()),
		configLine("Webhook user", cfg.Webhook.Username),
		configLine("Log level", cfg.Log.Level),
		configLine("Log format", cfg.Log.Format),
		configLine("Access log", cfg.Log.AccessFormat),
	}
	if cfg.Telegram.APIURL != "" && cfg.Telegram.APIURL != telegram.DefaultAPIURL {
		lines = append(lines, configLine("Bot API URL", cfg.Telegram.APIURL+" (custom)"))
	}
	if cfg.DryRun {
		lines = append(lines, configLine("Dry-run", "enabled (no messages sent)"))
	}
	lines = append(lines,
		"",
		fmt.Sprintf("  Server listening on http://%s", addr),
		"",
	)

	fmt.Fprintln(w, strings.Join(lines, "\n"))
}
