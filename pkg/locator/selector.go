// Package locator turns selector strings and resolved elements into a uniform
// Handle that the engines act on.
package locator

import "strings"

// Strategy tells how a selector crosses shadow boundaries.
type Strategy int

const (
	// StrategyNative selectors are evaluated by the browser layer, which
	// pierces open shadow roots on its own.
	StrategyNative Strategy = iota
	// StrategyPath selectors (XPath) only see the flat tree they are
	// evaluated against and must be re-rooted to cross a shadow boundary.
	StrategyPath
)

// String returns the string representation of Strategy
func (s Strategy) String() string {
	switch s {
	case StrategyNative:
		return "native"
	case StrategyPath:
		return "path"
	default:
		return "unknown"
	}
}

const (
	xpathPrefix = "xpath="
	cssPrefix   = "css="
)

// Selector is a parsed selector string. The strategy is decided once, here,
// and carried with the expression.
type Selector struct {
	Strategy Strategy
	Expr     string // expression without any engine prefix
	Raw      string // as written by the caller
}

// Parse classifies a raw selector.
//
//	xpath=.//button        path
//	//div[@id='x']         path
//	./span, ../td, (//a)[1] path
//	css=#host              native (prefix stripped)
//	#host .item            native
func Parse(raw string) Selector {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, xpathPrefix):
		return Selector{Strategy: StrategyPath, Expr: strings.TrimSpace(s[len(xpathPrefix):]), Raw: raw}
	case strings.HasPrefix(s, cssPrefix):
		return Selector{Strategy: StrategyNative, Expr: strings.TrimSpace(s[len(cssPrefix):]), Raw: raw}
	case looksLikePath(s):
		return Selector{Strategy: StrategyPath, Expr: s, Raw: raw}
	default:
		return Selector{Strategy: StrategyNative, Expr: s, Raw: raw}
	}
}

func looksLikePath(s string) bool {
	return strings.HasPrefix(s, "/") ||
		strings.HasPrefix(s, "./") ||
		strings.HasPrefix(s, "../") ||
		strings.HasPrefix(s, "(/") ||
		strings.HasPrefix(s, "(./")
}

// IsPath reports whether the selector uses the path strategy.
func (s Selector) IsPath() bool { return s.Strategy == StrategyPath }

// String returns the selector as written.
func (s Selector) String() string {
	if s.Raw != "" {
		return s.Raw
	}
	if s.Strategy == StrategyPath {
		return xpathPrefix + s.Expr
	}
	return s.Expr
}
