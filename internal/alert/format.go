package alert

import (
	"strings"
	"unicode/utf8"
)

// NotAvailable is rendered in place of a missing summary or description.
const NotAvailable = "N/A"

// Markup renders plain text for a destination's markup dialect.
type Markup interface {
	// Escape returns s with every dialect control character neutralized.
	// It must act on each character independently, so that escaping a
	// string equals concatenating the escaped characters.
	Escape(s string) string
	// Bold returns s, unescaped, rendered as emphasized text.
	Bold(s string) string
}

// Ellipsis marks a message cut by FormatLimit.
const Ellipsis = "..."

// Format renders one alert as a multi-line text block:
//
//	Alert: FIRING          (bold)
//	Summary: <summary>
//	Description: <description>
//
//	Labels:
//	- <key>: <value>
//
// Labels are rendered in the order they were received. Format is a pure
// function of the alert and the markup.
func Format(a *Alert, m Markup) string {
	header, body := render(a)
	return m.Bold(header) + "\n" + m.Escape(body)
}

// FormatLimit renders like Format but keeps the result within maxLen
// characters. A body that does not fit is cut between escaped characters
// and ends with the escaped Ellipsis, so an escape sequence or entity is
// never split.
func FormatLimit(a *Alert, m Markup, maxLen int) string {
	if out := Format(a, m); utf8.RuneCountInString(out) <= maxLen {
		return out
	}

	header, body := render(a)
	suffix := m.Escape(Ellipsis)
	head := m.Bold(header) + "\n"
	n := utf8.RuneCountInString(head) + utf8.RuneCountInString(suffix)
	if n > maxLen {
		return limitHeader(header, m, maxLen)
	}

	var b strings.Builder
	b.WriteString(head)
	for _, r := range body {
		e := m.Escape(string(r))
		n += utf8.RuneCountInString(e)
		if n > maxLen {
			break
		}
		b.WriteString(e)
	}
	b.WriteString(suffix)
	return b.String()
}

// limitHeader keeps the longest header prefix whose bold rendering with the
// Ellipsis fits in maxLen.
func limitHeader(header string, m Markup, maxLen int) string {
	runes := []rune(header)
	fits := func(k int) bool {
		return utf8.RuneCountInString(m.Bold(string(runes[:k])+Ellipsis)) <= maxLen
	}
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if !fits(lo) {
		return ""
	}
	return m.Bold(string(runes[:lo]) + Ellipsis)
}

// render returns the unescaped header and body of the alert text.
func render(a *Alert) (header, body string) {
	var b strings.Builder

	b.WriteString("Summary: " + annotationOrNA(a, "summary"))
	b.WriteByte('\n')
	b.WriteString("Description: " + annotationOrNA(a, "description"))
	b.WriteByte('\n')
	b.WriteByte('\n')
	b.WriteString("Labels:")
	b.WriteByte('\n')
	for _, p := range a.Labels {
		b.WriteString("- " + p.Key + ": " + p.Value)
		b.WriteByte('\n')
	}

	return "Alert: " + strings.ToUpper(a.Status), b.String()
}

func annotationOrNA(a *Alert, name string) string {
	if v, ok := a.Annotations.Get(name); ok {
		return v
	}
	return NotAvailable
}
