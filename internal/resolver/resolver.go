// Package resolver computes, per route, the minimal transitive closure
// of symbols the route needs to execute standalone. Resolution scans
// source text for call expressions; it is best-effort and bounded, not
// a semantic analysis.
package resolver

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/splinter-dev/splinter/internal/analyzer"
)

// maxVisited bounds the closure walk so cyclic or densely connected
// call graphs always terminate. Raising it trades runtime for
// completeness; the cap itself must stay.
const maxVisited = 50

// Prefixes distinguishing whole-class dependencies from plain functions.
const (
	ClassPrefix = "class:"
	ModelPrefix = "model:"
)

// Closure is the resolved dependency set for one route.
type Closure struct {
	// Dependencies lists resolved symbol names; class and model entries
	// carry their prefix.
	Dependencies []string

	// Sources maps each dependency to its full source text.
	Sources map[string]string
}

var (
	callRegex   = regexp.MustCompile(`(?m)(?:^|[^.\w])([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	methodRegex = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\.([a-zA-Z_][a-zA-Z0-9_]*)\s*\(`)
	ctorRegex   = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*([A-Z][a-zA-Z0-9_]*)\s*\(`)
)

// Resolver walks scan results. It carries no state between calls; the
// visited set lives per resolution.
type Resolver struct{}

func New() *Resolver {
	return &Resolver{}
}

// Resolve returns the closure for one route given the scan's symbol maps.
func (r *Resolver) Resolve(route analyzer.Route, scan *analyzer.Result) *Closure {
	w := &walker{
		scan:    scan,
		visited: make(map[string]bool),
		closure: &Closure{Sources: make(map[string]string)},
	}

	w.walk(route.SourceText)
	w.addModelDeps(route.SourceText)

	sort.Strings(w.closure.Dependencies)

	log.Debug().
		Str("route", route.Name).
		Int("dependencies", len(w.closure.Dependencies)).
		Bool("bounded", len(w.visited) >= maxVisited).
		Msg("Resolved route closure")

	return w.closure
}

type walker struct {
	scan    *analyzer.Result
	visited map[string]bool
	closure *Closure
}

// visit marks a symbol and reports whether the walk may continue.
// Once the bound is reached no further symbols are admitted.
func (w *walker) visit(symbol string) bool {
	if w.visited[symbol] {
		return false
	}
	if len(w.visited) >= maxVisited {
		return false
	}
	w.visited[symbol] = true
	return true
}

func (w *walker) walk(source string) {
	// Plain call expressions resolve against known functions.
	for _, m := range callRegex.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if Denied(name) {
			continue
		}
		if body, ok := w.scan.Functions[name]; ok {
			if !w.visit(name) {
				continue
			}
			w.add(name, body)
			w.walk(body)
		}
	}

	// obj.method(...) calls resolve the object to an owned service
	// class; the whole class source is included, never a single
	// method, because fields and constructors are shared.
	for _, m := range methodRegex.FindAllStringSubmatch(source, -1) {
		object, method := m[1], m[2]
		if Denied(method) || Denied(object) {
			continue
		}
		className := w.resolveOwner(object, method, source)
		if className == "" {
			continue
		}
		key := ClassPrefix + className
		if !w.visit(key) {
			continue
		}
		body := w.scan.Classes[className]
		w.add(key, body)
		w.walk(body)
	}
}

// resolveOwner maps an object variable to its class. Instantiations in
// the enclosing source win; otherwise classes declaring the method are
// candidates, tie-broken by exact name suffix against the object name.
func (w *walker) resolveOwner(object, method, source string) string {
	for _, m := range ctorRegex.FindAllStringSubmatch(source, -1) {
		if m[1] != object {
			continue
		}
		if _, ok := w.scan.Classes[m[2]]; ok {
			return m[2]
		}
	}

	var candidates []string
	for name, body := range w.scan.Classes {
		if strings.Contains(body, "def "+method+"(") {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		// Unresolved symbols are silently dropped.
		return ""
	}
	if len(candidates) == 1 {
		return candidates[0]
	}

	sort.Strings(candidates)
	normalized := strings.ReplaceAll(strings.ToLower(object), "_", "")
	for _, name := range candidates {
		if strings.HasSuffix(normalized, strings.ToLower(name)) || strings.HasSuffix(strings.ToLower(name), normalized) {
			return name
		}
	}
	return candidates[0]
}

// addModelDeps includes classes instantiated in the route source that
// were not already pulled in as services: parameter/return model types.
func (w *walker) addModelDeps(source string) {
	for _, m := range callRegex.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if Denied(name) || !isCapitalized(name) {
			continue
		}
		body, ok := w.scan.Classes[name]
		if !ok {
			continue
		}
		if w.visited[ClassPrefix+name] {
			continue
		}
		key := ModelPrefix + name
		if !w.visit(key) {
			continue
		}
		w.add(key, body)
	}
}

func (w *walker) add(key, source string) {
	w.closure.Dependencies = append(w.closure.Dependencies, key)
	w.closure.Sources[key] = source
}

func isCapitalized(name string) bool {
	return name != "" && name[0] >= 'A' && name[0] <= 'Z'
}
