// Package headerdetect assigns hierarchical header levels to text spans
// from font attributes, textual patterns, and exact-text rules.
package headerdetect

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/docetl-project/docetl/internal/domain"
)

// regexCacheSize bounds the compiled-pattern LRU shared by a Detector
// instance; the same HeaderStyleDefinition set is evaluated once per
// span for every page of every document under the parallel dispatcher,
// so recompiling patterns per call would dominate CPU.
const regexCacheSize = 256

type regexCache struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

func newRegexCache() *regexCache {
	c, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &regexCache{cache: c}
}

func (c *regexCache) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.cache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	c.cache.Add(pattern, re)
	return re, nil
}

// admitFilter implements the HeaderFilter admission rule: length checks,
// then starts/ends, then include_words (ANY), then exclude_words
// (NONE), then regexes (include required, exclude forbidden).
// Case-insensitive unless Filter.CaseSensitive is set.
func admitFilter(f *domain.HeaderFilter, text string, rc *regexCache) bool {
	if f == nil {
		return true
	}

	compareText := text
	if !f.CaseSensitive {
		compareText = strings.ToLower(text)
	}
	fold := func(s string) string {
		if f.CaseSensitive {
			return s
		}
		return strings.ToLower(s)
	}

	if f.MinLength != nil && len(text) < *f.MinLength {
		return false
	}
	if f.MaxLength != nil && len(text) > *f.MaxLength {
		return false
	}
	if f.StartsWith != "" && !strings.HasPrefix(compareText, fold(f.StartsWith)) {
		return false
	}
	if f.EndsWith != "" && !strings.HasSuffix(compareText, fold(f.EndsWith)) {
		return false
	}
	if len(f.IncludeWords) > 0 {
		any := false
		for _, w := range f.IncludeWords {
			if strings.Contains(compareText, fold(w)) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	if len(f.ExcludeWords) > 0 {
		for _, w := range f.ExcludeWords {
			if strings.Contains(compareText, fold(w)) {
				return false
			}
		}
	}
	if f.IncludeRegex != "" {
		re, err := rc.compile(caseInsensitiveIfNeeded(f.IncludeRegex, f.CaseSensitive))
		if err != nil || !re.MatchString(text) {
			return false
		}
	}
	if f.ExcludeRegex != "" {
		re, err := rc.compile(caseInsensitiveIfNeeded(f.ExcludeRegex, f.CaseSensitive))
		if err == nil && re.MatchString(text) {
			return false
		}
	}
	if f.ContainsPattern != "" {
		re, err := rc.compile(caseInsensitiveIfNeeded(f.ContainsPattern, f.CaseSensitive))
		if err != nil || !re.MatchString(text) {
			return false
		}
	}
	return true
}

func caseInsensitiveIfNeeded(pattern string, caseSensitive bool) string {
	if caseSensitive {
		return pattern
	}
	return "(?i)" + pattern
}
