package telegram

import (
	"fmt"
	"html"
	"strings"
)

// ParseMode is the Bot API parse_mode value a message is sent with.
type ParseMode string

// Supported parse modes. ParseModeNone sends text without markup.
const (
	ParseModeMarkdown   ParseMode = "Markdown"
	ParseModeMarkdownV2 ParseMode = "MarkdownV2"
	ParseModeHTML       ParseMode = "HTML"
	ParseModeNone       ParseMode = ""
)

// Markup escapes and emphasizes text for one parse mode.
type Markup interface {
	Escape(s string) string
	Bold(s string) string
	ParseMode() ParseMode
}

// ParseParseMode maps a configuration value to a ParseMode. Matching is
// case-insensitive; "none" and "" select plain text.
func ParseParseMode(s string) (ParseMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "markdown":
		return ParseModeMarkdown, nil
	case "markdownv2":
		return ParseModeMarkdownV2, nil
	case "html":
		return ParseModeHTML, nil
	case "", "none":
		return ParseModeNone, nil
	default:
		return "", fmt.Errorf("telegram: unsupported parse mode %q", s)
	}
}

// MarkupFor returns the Markup for mode.
func MarkupFor(mode ParseMode) Markup {
	switch mode {
	case ParseModeMarkdown:
		return markdown{}
	case ParseModeMarkdownV2:
		return markdownV2{}
	case ParseModeHTML:
		return htmlMarkup{}
	default:
		return plain{}
	}
}

var markdownEscaper = strings.NewReplacer(
	`_`, `\_`,
	`*`, `\*`,
	"`", "\\`",
	`[`, `\[`,
)

// markdown is the legacy Markdown mode. Entities cannot contain escapes,
// so Bold drops asterisks instead: a status "fir*ing" renders as FIRING.
type markdown struct{}

func (markdown) Escape(s string) string { return markdownEscaper.Replace(s) }
func (markdown) Bold(s string) string {
	return "*" + strings.ReplaceAll(s, "*", "") + "*"
}
func (markdown) ParseMode() ParseMode { return ParseModeMarkdown }

var markdownV2Escaper = strings.NewReplacer(
	`\`, `\\`,
	`_`, `\_`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`(`, `\(`,
	`)`, `\)`,
	`~`, `\~`,
	"`", "\\`",
	`>`, `\>`,
	`#`, `\#`,
	`+`, `\+`,
	`-`, `\-`,
	`=`, `\=`,
	`|`, `\|`,
	`{`, `\{`,
	`}`, `\}`,
	`.`, `\.`,
	`!`, `\!`,
)

type markdownV2 struct{}

func (markdownV2) Escape(s string) string { return markdownV2Escaper.Replace(s) }
func (m markdownV2) Bold(s string) string  { return "*" + m.Escape(s) + "*" }
func (markdownV2) ParseMode() ParseMode    { return ParseModeMarkdownV2 }

type htmlMarkup struct{}

func (htmlMarkup) Escape(s string) string { return html.EscapeString(s) }
func (htmlMarkup) Bold(s string) string   { return "<b>" + html.EscapeString(s) + "</b>" }
func (htmlMarkup) ParseMode() ParseMode   { return ParseModeHTML }

type plain struct{}

func (plain) Escape(s string) string { return s }
func (plain) Bold(s string) string   { return s }
func (plain) ParseMode() ParseMode   { return ParseModeNone }
