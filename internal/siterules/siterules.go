// Package siterules loads per-site overrides: elements to leave untranslated and
// elements to treat as blocks regardless of their rendered layout.
package siterules

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"
	"gopkg.in/yaml.v3"
)

var ErrInvalidSelector = errors.New("invalid selector")

type Site struct {
	Hosts      []string `yaml:"hosts"`
	Skip       []string `yaml:"skip"`
	ForceBlock []string `yaml:"force_block"`
}

type Rules struct {
	Sites []Site `yaml:"sites"`
}

// Override is the merged rule set that applies to one page.
type Override struct {
	Skip       []string
	ForceBlock []string
}

func (o Override) Empty() bool {
	return len(o.Skip) == 0 && len(o.ForceBlock) == 0
}

func Load(path string) (*Rules, error) {
	if strings.TrimSpace(path) == "" {
		return &Rules{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read site rules %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return nil, fmt.Errorf("parse site rules YAML: %w", err)
	}

	for i, site := range rules.Sites {
		if len(site.Hosts) == 0 {
			return nil, fmt.Errorf("site rule %d: hosts is required", i)
		}
		for _, sel := range append(append([]string{}, site.Skip...), site.ForceBlock...) {
			if err := validateSelector(sel); err != nil {
				return nil, fmt.Errorf("site rule %d: %w", i, err)
			}
		}
	}
	return &rules, nil
}

// For merges every site whose hosts match host.
func (r *Rules) For(host string) Override {
	var o Override
	if r == nil {
		return o
	}
	host = strings.ToLower(strings.TrimSpace(host))
	for _, site := range r.Sites {
		if !matchesHost(site.Hosts, host) {
			continue
		}
		o.Skip = append(o.Skip, site.Skip...)
		o.ForceBlock = append(o.ForceBlock, site.ForceBlock...)
	}
	return o
}

func matchesHost(patterns []string, host string) bool {
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "*" || p == host:
			return true
		case strings.HasPrefix(p, "*."):
			suffix := p[1:]
			if strings.HasSuffix(host, suffix) || host == p[2:] {
				return true
			}
		}
	}
	return false
}

func isXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}

func validateSelector(sel string) error {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return fmt.Errorf("%w: empty", ErrInvalidSelector)
	}
	if isXPath(sel) {
		if _, err := xpath.Compile(sel); err != nil {
			return fmt.Errorf("%w %q: %v", ErrInvalidSelector, sel, err)
		}
		return nil
	}
	if _, err := cascadia.Compile(sel); err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidSelector, sel, err)
	}
	return nil
}

// Matcher holds the elements an Override selects within one tree.
type Matcher struct {
	skip       map[*html.Node]struct{}
	forceBlock map[*html.Node]struct{}
}

// Compile evaluates every selector of o against the tree rooted at root.
func (o Override) Compile(root *html.Node) (*Matcher, error) {
	m := &Matcher{}
	if o.Empty() || root == nil {
		return m, nil
	}

	var err error
	if m.skip, err = selectAll(root, o.Skip); err != nil {
		return &Matcher{}, err
	}
	if m.forceBlock, err = selectAll(root, o.ForceBlock); err != nil {
		return &Matcher{}, err
	}
	return m, nil
}

func selectAll(root *html.Node, selectors []string) (map[*html.Node]struct{}, error) {
	set := map[*html.Node]struct{}{}
	doc := goquery.NewDocumentFromNode(root)

	for _, sel := range selectors {
		sel = strings.TrimSpace(sel)
		if err := validateSelector(sel); err != nil {
			return nil, err
		}

		if isXPath(sel) {
			nodes, err := htmlquery.QueryAll(root, sel)
			if err != nil {
				return nil, fmt.Errorf("%w %q: %v", ErrInvalidSelector, sel, err)
			}
			for _, n := range nodes {
				set[n] = struct{}{}
			}
			continue
		}

		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			for _, n := range s.Nodes {
				set[n] = struct{}{}
			}
		})
	}
	return set, nil
}

func (m *Matcher) Skip(n *html.Node) bool {
	if m == nil {
		return false
	}
	_, ok := m.skip[n]
	return ok
}

func (m *Matcher) ForceBlock(n *html.Node) bool {
	if m == nil {
		return false
	}
	_, ok := m.forceBlock[n]
	return ok
}
