// Package extract finds requirement codes embedded as free text in test steps.
//
// Step text is noisy: it comes from a rich-text editor, letters of a code are
// sometimes wrapped in individual <b> tags, digits are spaced out, and codes are
// often followed by version stamps (-V3.24) or campaign tags (VVRM12). The
// extractor normalizes the text in independent stages (see stages.go) and then
// matches with a regexp2 pattern whose lookarounds reject tagged candidates.
package extract

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"reqtrace/metrics"
)

// DefaultMatchTimeout bounds a single regexp2 scan
const DefaultMatchTimeout = 500 * time.Millisecond

// codePattern matches SR<digits> with an optional -<digits>[,<digits>...] child suffix.
//
//   - the lookbehind keeps codes from starting inside a larger token
//   - a hyphen followed by a digit makes the suffix mandatory, so a rejected
//     child never degrades into its bare base code
//   - the trailing lookaheads reject letters/digits, decimals, -V<d>.<d> /
//     _V<d>.<d> version stamps and -VVRM campaign tags
const codePattern = `(?<![A-Za-z0-9])SR(?>(\d+))` +
	`(?:-(?>(\d+(?:,\d+)*))|(?!-\d))` +
	`(?![A-Za-z0-9])(?!\.\d)(?![-_]?V\d+(?:\.\d+)+)(?![-_]VVRM)`

// Options configures an Extractor.
type Options struct {
	// ExpandSuffixes turns "SR0095-2,3" into SR0095-2 and SR0095-3.
	// When false only the first child is kept.
	ExpandSuffixes bool
	// Timeout bounds each regexp2 scan. Zero means DefaultMatchTimeout.
	Timeout time.Duration
}

// DefaultOptions returns the options used by the package-level Codes.
func DefaultOptions() Options {
	return Options{ExpandSuffixes: true, Timeout: DefaultMatchTimeout}
}

// Extractor extracts requirement codes from text. It is safe for concurrent use.
type Extractor struct {
	re     *regexp2.Regexp
	expand bool
	logger *zap.SugaredLogger
}

// New creates an Extractor.
func New(opts Options, logger *zap.SugaredLogger) *Extractor {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	re := regexp2.MustCompile(codePattern, regexp2.IgnoreCase)
	re.MatchTimeout = opts.Timeout
	if re.MatchTimeout <= 0 {
		re.MatchTimeout = DefaultMatchTimeout
	}
	return &Extractor{re: re, expand: opts.ExpandSuffixes, logger: logger}
}

var defaultExtractor = New(DefaultOptions(), nil)

// Codes extracts codes from text with the default options.
func Codes(text string) CodeSet {
	return defaultExtractor.Codes(text)
}

// Codes normalizes text and returns every requirement code found in it.
func (e *Extractor) Codes(text string) CodeSet {
	set := make(CodeSet)
	if strings.TrimSpace(text) == "" {
		return set
	}
	for _, code := range e.Match(Normalize(text)) {
		set[code] = struct{}{}
	}
	return set
}

// Match runs the code pattern over already-normalized text and returns the
// canonical codes in order of appearance, possibly with duplicates.
func (e *Extractor) Match(normalized string) []string {
	var codes []string

	m, err := e.re.FindStringMatch(normalized)
	for m != nil && err == nil {
		base := "SR" + m.GroupByNumber(1).String()
		suffix := m.GroupByNumber(2).String()

		if suffix == "" {
			codes = append(codes, base)
		} else {
			children := strings.Split(suffix, ",")
			if !e.expand {
				children = children[:1]
			}
			for _, child := range children {
				codes = append(codes, base+"-"+child)
			}
		}

		m, err = e.re.FindNextMatch(m)
	}

	if err != nil {
		metrics.ExtractScanTimeouts.Inc()
		e.logger.Warnw("Requirement code scan aborted",
			"error", err,
			"text_length", len(normalized),
			"codes_found", len(codes))
	}
	return codes
}
