package domain

// HeaderFilter gates whether a text admits a matched HeaderStyleDefinition.
// All non-zero-value predicates are conjunctive.
type HeaderFilter struct {
	IncludeWords    []string
	ExcludeWords    []string
	IncludeRegex    string
	ExcludeRegex    string
	MinLength       *int
	MaxLength       *int
	StartsWith      string
	EndsWith        string
	ContainsPattern string
	CaseSensitive   bool
}

// ExactHeadingRule matches literal heading text, evaluated before any
// HeaderStyleDefinition.
type ExactHeadingRule struct {
	HeadingText   string
	Level         int
	CaseSensitive bool
	WholeWord     bool
}

// HeaderStyleDefinition assigns a header Level when its style predicates
// (each skipped if nil) match and its Filter (if any) admits the text.
type HeaderStyleDefinition struct {
	Level             int
	FontSize          *float64
	IsBold            *bool
	IsItalic          *bool
	StartsWithPattern string
	ContainsPattern   string
	Filter            *HeaderFilter
	ExactHeadingRules []ExactHeadingRule
}

// FontSizeTolerance is the approximate-equality tolerance for FontSize
// comparisons.
const FontSizeTolerance = 0.1
