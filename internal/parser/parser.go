// Package parser implements the source parser registry and the per-source
// extraction routines that turn raw leak-site markup into normalized records.
package parser

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leaklook/leaklook/internal/feed"
)

// ErrNoParser is returned by Lookup when a source id has no registered
// extraction routine.
var ErrNoParser = errors.New("parser: no parser registered")

// Result is the outcome of one extraction run over a single document.
// Skipped counts candidate records whose markup could not be decoded;
// a skip never aborts extraction of the remaining candidates.
type Result struct {
	Records []feed.RawRecord
	Skipped int
}

// Parser extracts normalized records from one source's raw documents. An
// implementation must be side-effect free and total per candidate: the only
// error it may return is for a document that cannot be decoded at all.
type Parser interface {
	Source() string
	Extract(data []byte) (Result, error)
}

// Registry maps source ids to their extraction routines. Registration is
// static: every parser is wired in NewRegistry, so adding a leak site is a
// compile-time act of one routine plus one entry here.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns a Registry holding the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{parsers: make(map[string]Parser)}
	for _, p := range []Parser{
		omegaParser{},
		cryptbbParser{},
		donutleaksParser{},
		hellcatParser{},
		snatchParser{},
		stormousParser{},
		werewolvesParser{},
	} {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the parser for its source id.
func (r *Registry) Register(p Parser) {
	r.parsers[p.Source()] = p
}

// Lookup returns the parser registered for the source id.
func (r *Registry) Lookup(source string) (Parser, error) {
	p, ok := r.parsers[source]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoParser, source)
	}
	return p, nil
}

// Sources lists all registered source ids in lexical order.
func (r *Registry) Sources() []string {
	out := make([]string, 0, len(r.parsers))
	for source := range r.parsers {
		out = append(out, source)
	}
	sort.Strings(out)
	return out
}

func newDocument(data []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// requiredText finds the first node matching selector under s and returns
// its trimmed text. A missing node marks the candidate as malformed.
func requiredText(s *goquery.Selection, selector string) (string, error) {
	node := s.Find(selector).First()
	if node.Length() == 0 {
		return "", fmt.Errorf("missing %q", selector)
	}
	return strings.TrimSpace(node.Text()), nil
}

// requiredAttr returns the trimmed attribute value of the first node
// matching selector, failing the candidate when node or attribute is absent.
func requiredAttr(s *goquery.Selection, selector, attr string) (string, error) {
	node := s.Find(selector).First()
	if node.Length() == 0 {
		return "", fmt.Errorf("missing %q", selector)
	}
	val, ok := node.Attr(attr)
	if !ok {
		return "", fmt.Errorf("missing attr %q on %q", attr, selector)
	}
	return strings.TrimSpace(val), nil
}
