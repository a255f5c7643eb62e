package processor

import (
	"bytes"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"

	"newsharvest/internal/config"
	"newsharvest/pkg/types"
)

// Result is the best-effort text pulled out of a document.
type Result struct {
	Text      string
	Quality   types.Quality
	Heuristic string
}

// Input is what every heuristic sees. Doc must be treated as read-only.
type Input struct {
	Doc *goquery.Document
	Raw []byte
	URL *url.URL
}

// Candidate is a heuristic's answer. Structured marks a container + paragraph match.
type Candidate struct {
	Text       string
	Structured bool
}

// Heuristic is one step of the extraction chain.
type Heuristic struct {
	Name  string
	Apply func(in Input) (Candidate, bool)
}

var defaultContainers = []string{
	"[itemprop='articleBody']",
	"#articleBody",
	"#article-body",
	".article-body",
	".article_body",
	".article-content",
	".articleBody",
	".story-body",
	".post-content",
	".entry-content",
	"#newsct_article",
	"#dic_area",
	".news_end",
}

var defaultBoilerplate = []string{
	`(?i)^\s*(copyright\b|ⓒ|©|\(c\)\s)`,
	`(?i)all rights reserved`,
	`(?i)^\s*disclaimer\b`,
	`(?i)unauthori[sz]ed (reproduction|redistribution)`,
	`무단\s*(전재|복제)|재배포\s*금지`,
	`(?i)^\s*(advertisement|sponsored content)\s*$`,
	`(?i)^\s*(read more|related articles?|click here|subscribe now)\b`,
	`^[\w.+-]+@[\w-]+\.[\w.]+$`,
}

// Extractor runs the ordered heuristic chain over fetched documents.
// It holds no per-document state and is safe for concurrent use.
type Extractor struct {
	containers   []string
	boilerplate  []*regexp.Regexp
	minLength    int
	minLineRunes int
	chain        []Heuristic
	strict       *bluemonday.Policy
	logger       *slog.Logger
}

// NewExtractor builds an extractor from configuration.
func NewExtractor(cfg config.ExtractConfig, logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	containers := cfg.Containers
	if len(containers) == 0 {
		containers = defaultContainers
	}
	patterns := append(append([]string(nil), defaultBoilerplate...), cfg.BoilerplatePatterns...)
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, raw := range patterns {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("boilerplate pattern %q: %w", raw, err)
		}
		compiled = append(compiled, re)
	}

	e := &Extractor{
		containers:   containers,
		boilerplate:  compiled,
		minLength:    cfg.MinLength,
		minLineRunes: cfg.MinLineRunes,
		strict:       bluemonday.StrictPolicy(),
		logger:       logger,
	}
	e.chain = []Heuristic{
		{Name: "jsonld", Apply: e.jsonLD},
		{Name: "container", Apply: e.knownContainer},
		{Name: "article-root", Apply: e.articleRoot},
		{Name: "readability", Apply: e.readability},
		{Name: "document", Apply: e.fullDocument},
	}
	return e, nil
}

// Chain exposes the ordered heuristics.
func (e *Extractor) Chain() []Heuristic {
	return e.chain
}

// MinLength is the rune count below which text is considered too short.
func (e *Extractor) MinLength() int {
	return e.minLength
}

// Extract returns the best text it can find. An empty document yields QualityNone.
func (e *Extractor) Extract(page *types.Page) Result {
	none := Result{Quality: types.QualityNone}
	if page == nil || len(bytes.TrimSpace(page.Body)) == 0 {
		return none
	}

	if !bytes.Contains(page.Body, []byte("<")) {
		text := e.filterLines(strings.Split(string(page.Body), "\n"), "\n")
		if text == "" {
			return none
		}
		return Result{Text: text, Quality: types.QualityLow, Heuristic: "plain"}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		e.logger.Debug("extract: parse html failed", "error", err)
		return none
	}
	in := Input{Doc: doc, Raw: page.Body, URL: page.BaseURL()}

	var best Result
	for _, h := range e.chain {
		cand, ok := h.Apply(in)
		if !ok || cand.Text == "" {
			continue
		}
		res := Result{Text: cand.Text, Quality: types.QualityLow, Heuristic: h.Name}
		if cand.Structured {
			res.Quality = types.QualityHigh
		}
		if runeLen(res.Text) >= e.minLength {
			return res
		}
		if runeLen(res.Text) > runeLen(best.Text) {
			best = res
		}
	}

	// Nothing reached minLength; a present description wins over partial body text.
	if desc := e.Description(doc); desc != "" {
		return Result{Text: desc, Quality: types.QualityLow, Heuristic: "metadata"}
	}
	if best.Text == "" {
		return none
	}
	best.Quality = types.QualityLow
	return best
}

// Description returns the first non-empty description metadata field, tags stripped.
func (e *Extractor) Description(doc *goquery.Document) string {
	for _, sel := range []string{
		"meta[name='description']",
		"meta[property='og:description']",
		"meta[name='twitter:description']",
	} {
		content, ok := doc.Find(sel).First().Attr("content")
		if !ok {
			continue
		}
		if text := e.StripTags(content); text != "" {
			return text
		}
	}
	return ""
}

// StripTags removes markup and entities from an HTML fragment.
func (e *Extractor) StripTags(fragment string) string {
	return normalizeWhitespace(html.UnescapeString(e.strict.Sanitize(fragment)))
}

// filterLines drops boilerplate, near-empty and repeated lines, then joins the rest.
func (e *Extractor) filterLines(lines []string, sep string) string {
	kept := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		line = normalizeWhitespace(line)
		if line == "" || runeLen(line) < e.minLineRunes {
			continue
		}
		if e.isBoilerplate(line) {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		kept = append(kept, line)
	}
	return strings.Join(kept, sep)
}

func (e *Extractor) isBoilerplate(line string) bool {
	for _, re := range e.boilerplate {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
