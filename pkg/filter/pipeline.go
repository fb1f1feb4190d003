// Package filter implements the ordered predicate chain events must pass
// before delivery.
package filter

import (
	"strings"
	"sync/atomic"

	"github.com/muhammetakkurtt/alpha-stream/pkg/models"
)

// Predicate is one gate in the pipeline. An event is delivered only if every
// predicate allows it.
type Predicate interface {
	Name() string
	Allow(evt *models.Event) bool
}

// Pipeline holds the active predicate chain. The chain is swapped atomically;
// in-flight events use the snapshot observed at entry.
type Pipeline struct {
	predicates atomic.Pointer[[]Predicate]
}

// NewPipeline creates a pipeline with the given initial predicates. An empty
// pipeline passes everything.
func NewPipeline(predicates ...Predicate) *Pipeline {
	p := &Pipeline{}
	p.Set(predicates...)
	return p
}

// Set atomically replaces the predicate chain.
func (p *Pipeline) Set(predicates ...Predicate) {
	chain := make([]Predicate, len(predicates))
	copy(chain, predicates)
	p.predicates.Store(&chain)
}

// Snapshot returns the current predicate chain.
func (p *Pipeline) Snapshot() []Predicate {
	return *p.predicates.Load()
}

// Allow reports whether the event passes every predicate in the current chain.
func (p *Pipeline) Allow(evt *models.Event) bool {
	for _, pred := range p.Snapshot() {
		if !pred.Allow(evt) {
			return false
		}
	}
	return true
}

// UserFilter passes events whose username is in the allowlist. An empty
// allowlist passes everything.
type UserFilter struct {
	users map[string]struct{}
}

// NewUserFilter builds a user allowlist from the given usernames. Usernames
// are matched case-sensitively on the normalized form.
func NewUserFilter(users []string) *UserFilter {
	set := make(map[string]struct{}, len(users))
	for _, u := range users {
		if u = strings.TrimSpace(u); u != "" {
			set[u] = struct{}{}
		}
	}
	return &UserFilter{users: set}
}

func (f *UserFilter) Name() string { return "user" }

func (f *UserFilter) Allow(evt *models.Event) bool {
	if len(f.users) == 0 {
		return true
	}
	_, ok := f.users[evt.User.Username]
	return ok
}

// KeywordFilter passes events whose effective text contains any keyword,
// case-insensitively. Events without text (follows, profiles) pass only when
// the keyword set is empty.
type KeywordFilter struct {
	keywords []string
}

// NewKeywordFilter builds a keyword filter. Keywords are matched as
// case-insensitive substrings.
func NewKeywordFilter(keywords []string) *KeywordFilter {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k != "" {
			lowered = append(lowered, strings.ToLower(k))
		}
	}
	return &KeywordFilter{keywords: lowered}
}

func (f *KeywordFilter) Name() string { return "keyword" }

func (f *KeywordFilter) Allow(evt *models.Event) bool {
	if len(f.keywords) == 0 {
		return true
	}
	text := strings.ToLower(evt.EffectiveText())
	if text == "" {
		return false
	}
	for _, k := range f.keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// KindFilter passes events whose kind is in the allowed set. An empty set
// passes everything.
type KindFilter struct {
	kinds map[models.EventKind]struct{}
}

// NewKindFilter builds an event-kind gate.
func NewKindFilter(kinds []models.EventKind) *KindFilter {
	set := make(map[models.EventKind]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return &KindFilter{kinds: set}
}

func (f *KindFilter) Name() string { return "kind" }

func (f *KindFilter) Allow(evt *models.Event) bool {
	if len(f.kinds) == 0 {
		return true
	}
	_, ok := f.kinds[evt.Kind]
	return ok
}
