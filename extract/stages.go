package extract

import (
	"html"
	"regexp"
	"strings"
)

// Text normalization stages. Each stage is a pure string transform and is
// applied in order by Normalize: strip tags, decode entities, strip the
// markup that was entity-escaped, collapse spacing.

var (
	tagPattern     = regexp.MustCompile(`<!--[\s\S]*?-->|<\s*/?\s*([a-zA-Z][a-zA-Z0-9]*)[^>]*>`)
	escapedTag     = regexp.MustCompile(`</?([a-zA-Z][a-zA-Z0-9]*)(?:\s[^<>]*)?/?>`)
	spacedCode     = regexp.MustCompile(`(?i)\bS[ \t]*R[ \t]*(\d(?:[ \t]\d)+\b|\d+)`)
	horizontalWS   = regexp.MustCompile(`[ \t]+`)
	nonBreakingSet = strings.NewReplacer("\u00a0", " ", "\u2007", " ", "\u202f", " ")
)

// blockTags separate words when removed; every other tag is removed with no separator
var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "ul": true, "ol": true,
	"tr": true, "td": true, "th": true, "table": true, "tbody": true, "thead": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

// inlineTags are the formatting tags a rich-text editor emits around text
var inlineTags = map[string]bool{
	"b": true, "i": true, "u": true, "s": true, "em": true, "strong": true,
	"span": true, "font": true, "sub": true, "sup": true, "small": true, "big": true,
	"strike": true, "code": true, "mark": true, "a": true,
}

// StripTags removes HTML tags. Block-level tags become a single space, inline
// tags vanish, so letters individually wrapped in <b> join back together.
func StripTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return stripTags(s, false)
}

// StripEscapedTags removes HTML tags that survived as entities, e.g.
// "&lt;b&gt;S&lt;/b&gt;" once decoded. Only known block and inline tag names are
// removed, so decoded text such as "<SR0001>" is kept.
func StripEscapedTags(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	return stripTags(s, true)
}

func stripTags(s string, knownOnly bool) string {
	pattern := tagPattern
	if knownOnly {
		pattern = escapedTag
	}
	return pattern.ReplaceAllStringFunc(s, func(tag string) string {
		m := pattern.FindStringSubmatch(tag)
		name := strings.ToLower(m[1])
		switch {
		case blockTags[name]:
			return " "
		case knownOnly && !inlineTags[name]:
			return tag
		}
		return ""
	})
}

// DecodeEntities decodes HTML entities and turns non-breaking spaces into plain spaces.
func DecodeEntities(s string) string {
	if strings.Contains(s, "&") {
		s = html.UnescapeString(s)
	}
	return nonBreakingSet.Replace(s)
}

// CollapseSpacing joins whitespace inside a code: between S and R, between the
// prefix and the number, and between individually spaced digits.
// A multi-digit run ends the numeric part, so "SR0001 2" is left alone.
func CollapseSpacing(s string) string {
	return spacedCode.ReplaceAllStringFunc(s, func(m string) string {
		sub := spacedCode.FindStringSubmatch(m)
		digits := horizontalWS.ReplaceAllString(sub[1], "")
		return "SR" + digits
	})
}

// Normalize runs every text stage in order.
func Normalize(s string) string {
	return CollapseSpacing(StripEscapedTags(DecodeEntities(StripTags(s))))
}
