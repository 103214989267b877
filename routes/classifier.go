package routes

import (
	"errors"
	"sort"
	"strings"
)

// ErrEmptyPrefix is an exported constant or variable used by route classification.
var ErrEmptyPrefix = errors.New("route prefix must not be empty")

// ErrPrefixNotRooted is an exported constant or variable used by route classification.
var ErrPrefixNotRooted = errors.New("route prefix must start with a slash")

// Class identifies how much identity work a navigation target requires.
type Class int

const (
	// Public paths render with no identity check at all.
	Public Class = iota
	// PublicWithBackgroundCheck paths render immediately while an
	// identity probe runs behind the render. The probe may update the
	// visible identity but never blocks or force-redirects the page.
	PublicWithBackgroundCheck
	// Protected paths block rendering until the visitor is resolved,
	// and redirect anonymous visitors to the sign-in page.
	Protected
)

// String returns a stable lowercase label for logs and audit events.
func (c Class) String() string {
	switch c {
	case Public:
		return "public"
	case PublicWithBackgroundCheck:
		return "public_background_check"
	case Protected:
		return "protected"
	default:
		return "unknown"
	}
}

// Rule binds a path prefix to the [Class] granted to every path below it.
type Rule struct {
	Prefix string
	Class  Class
}

// Table is the raw classification input consumed by [NewClassifier].
//
// Precedence is fixed: an exact match wins over any prefix rule, a
// public prefix rule wins over a protected prefix rule, and a path that
// matches nothing is Public. A course catalog living under a protected
// area therefore stays reachable for anonymous visitors as long as its
// prefix is listed as public.
type Table struct {
	Exact             map[string]Class
	PublicPrefixes    []Rule
	ProtectedPrefixes []string
}

// Classifier resolves paths against a normalized, immutable rule table.
// Classifier instances are intended to be configured during initialization
// and then treated as immutable unless documented otherwise.
type Classifier struct {
	exact           map[string]Class
	publicPrefixes  []Rule
	protectedPrefix []string
	defaultClass    Class
}

// NewClassifier validates and normalizes a [Table] into a [Classifier].
// Prefixes are sorted longest-first so the most specific rule wins when
// several prefixes cover the same path.
func NewClassifier(table Table) (*Classifier, error) {
	exact := make(map[string]Class, len(table.Exact))
	for path, class := range table.Exact {
		normalized, err := normalizePath(path)
		if err != nil {
			return nil, err
		}
		exact[normalized] = class
	}

	publicPrefixes := make([]Rule, 0, len(table.PublicPrefixes))
	for _, rule := range table.PublicPrefixes {
		normalized, err := normalizePath(rule.Prefix)
		if err != nil {
			return nil, err
		}
		publicPrefixes = append(publicPrefixes, Rule{Prefix: normalized, Class: rule.Class})
	}
	sort.SliceStable(publicPrefixes, func(i, j int) bool {
		return len(publicPrefixes[i].Prefix) > len(publicPrefixes[j].Prefix)
	})

	protectedPrefix := make([]string, 0, len(table.ProtectedPrefixes))
	for _, prefix := range table.ProtectedPrefixes {
		normalized, err := normalizePath(prefix)
		if err != nil {
			return nil, err
		}
		protectedPrefix = append(protectedPrefix, normalized)
	}
	sort.SliceStable(protectedPrefix, func(i, j int) bool {
		return len(protectedPrefix[i]) > len(protectedPrefix[j])
	})

	return &Classifier{
		exact:           exact,
		publicPrefixes:  publicPrefixes,
		protectedPrefix: protectedPrefix,
		defaultClass:    Public,
	}, nil
}

// Classify maps a navigation path to its [Class].
//
// Classify does not mutate shared state and can be used concurrently.
func (c *Classifier) Classify(path string) Class {
	path = canonicalPath(path)

	if class, ok := c.exact[path]; ok {
		return class
	}

	for _, rule := range c.publicPrefixes {
		if hasPathPrefix(path, rule.Prefix) {
			return rule.Class
		}
	}

	for _, prefix := range c.protectedPrefix {
		if hasPathPrefix(path, prefix) {
			return Protected
		}
	}

	return c.defaultClass
}

func normalizePath(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPrefix
	}
	if !strings.HasPrefix(path, "/") {
		return "", ErrPrefixNotRooted
	}
	return canonicalPath(path), nil
}

func canonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}
	if path == "" {
		return "/"
	}
	return path
}

// hasPathPrefix matches whole path segments only, so "/users" covers
// "/users/dashboard" but not "/usersettings".
func hasPathPrefix(path, prefix string) bool {
	if prefix == "/" {
		return true
	}
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}
