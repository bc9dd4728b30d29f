package headerdetect

import (
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/domain"
)

// Span is the minimal input the detector needs about one piece of text:
// its content and, optionally, the font attributes observed for it.
type Span struct {
	Text      string
	FontSize  *float64
	FontFlags *int
}

// Detector evaluates HeaderStyleDefinitions and ExactHeadingRules
// against spans to assign header levels.
type Detector struct {
	defs []domain.HeaderStyleDefinition
	rc   *regexCache
}

// NewDetector builds a Detector over the given ordered definitions.
func NewDetector(defs []domain.HeaderStyleDefinition) *Detector {
	return &Detector{defs: defs, rc: newRegexCache()}
}

// Detect returns the assigned header level and true if span matched
// either an ExactHeadingRule or an admitted HeaderStyleDefinition.
func (d *Detector) Detect(span Span) (level int, matched bool) {
	trimmed := strings.TrimSpace(span.Text)

	// Step 1: ExactHeadingRules, declaration order across definitions,
	// first match wins.
	for _, def := range d.defs {
		for _, rule := range def.ExactHeadingRules {
			if matchExact(rule, trimmed) {
				return rule.Level, true
			}
		}
	}

	// Step 2: scan HeaderStyleDefinitions in order.
	for _, def := range d.defs {
		if !d.styleMatches(def, span, trimmed) {
			continue
		}
		// Step 3: the definition's filter must admit the text.
		if !admitFilter(def.Filter, trimmed, d.rc) {
			continue
		}
		// Step 4: first admitted definition wins.
		return def.Level, true
	}
	return 0, false
}

func (d *Detector) styleMatches(def domain.HeaderStyleDefinition, span Span, trimmed string) bool {
	if def.FontSize != nil {
		if span.FontSize == nil || math.Abs(*span.FontSize-*def.FontSize) > domain.FontSizeTolerance {
			return false
		}
	}
	if def.IsBold != nil {
		if span.FontFlags == nil || domain.IsBold(*span.FontFlags) != *def.IsBold {
			return false
		}
	}
	if def.IsItalic != nil {
		if span.FontFlags == nil || domain.IsItalic(*span.FontFlags) != *def.IsItalic {
			return false
		}
	}
	if def.StartsWithPattern != "" {
		re, err := d.rc.compile("(?i)^" + def.StartsWithPattern)
		if err != nil || !re.MatchString(trimmed) {
			return false
		}
	}
	if def.ContainsPattern != "" {
		re, err := d.rc.compile("(?i)" + def.ContainsPattern)
		if err != nil || !re.MatchString(trimmed) {
			return false
		}
	}
	return true
}

// matchExact implements ExactHeadingRule matching: whole-word matches
// require the heading text be followed by a newline or the end of the
// candidate string.
func matchExact(rule domain.ExactHeadingRule, text string) bool {
	needle := rule.HeadingText
	haystack := text
	if !rule.CaseSensitive {
		needle = strings.ToLower(needle)
		haystack = strings.ToLower(haystack)
	}
	if !rule.WholeWord {
		return haystack == needle
	}
	pattern := "^" + regexp.QuoteMeta(needle) + "(\n|$)"
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(haystack)
}

// DetectDocument walks every page's spans in order, appending a Section
// for every detected header with start_page == end_page == the page
// number.
func (d *Detector) DetectDocument(doc *domain.Document) {
	for pi := range doc.Pages {
		page := &doc.Pages[pi]
		for _, block := range page.Blocks {
			for _, span := range block.Spans {
				fontSize := span.FontSize
				fontFlags := span.FontFlags
				level, ok := d.Detect(Span{Text: span.Text, FontSize: &fontSize, FontFlags: &fontFlags})
				if !ok {
					continue
				}
				doc.Sections = append(doc.Sections, domain.Section{
					ID:        uuid.NewString(),
					Title:     strings.TrimSpace(span.Text),
					Level:     level,
					StartPage: page.Number,
					EndPage:   page.Number,
				})
			}
		}
	}
}
