package invalidation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// Rule maps one event kind to the cache keys and key patterns it dirties.
// Keys and Patterns are templates: placeholders like {badge_id} are resolved
// from the event payload at invalidation time. A template containing "*" is
// a pattern, matched as a wildcard against live key sets; everything else is
// deleted as an exact key.
type Rule struct {
	Kind        event.Kind `json:"kind"`
	Name        string     `json:"name"`
	Keys        []string   `json:"keys,omitempty"`
	Patterns    []string   `json:"patterns,omitempty"`
	Rewarm      bool       `json:"rewarm,omitempty"`
	Description string     `json:"description,omitempty"`
}

// Resolve expands the rule's templates against the event, returning the
// exact keys and the wildcard patterns to invalidate. Results are
// deduplicated; a template whose placeholders the event cannot fill is
// skipped rather than producing a junk key.
func (r *Rule) Resolve(evt *event.DomainEvent) (keys, patterns []string) {
	replacer := eventReplacer(evt)

	seen := make(map[string]struct{}, len(r.Keys)+len(r.Patterns))

	add := func(template string) {
		resolved := replacer.Replace(template)
		if resolved == "" || placeholderRe.MatchString(resolved) {
			return
		}

		if _, dup := seen[resolved]; dup {
			return
		}
		seen[resolved] = struct{}{}

		if strings.Contains(resolved, "*") {
			patterns = append(patterns, resolved)
		} else {
			keys = append(keys, resolved)
		}
	}

	for _, template := range r.Keys {
		add(template)
	}

	for _, template := range r.Patterns {
		add(template)
	}

	return keys, patterns
}

// eventReplacer builds the placeholder substitution for one event. The
// closed placeholder set covers every payload field the rules can address.
func eventReplacer(evt *event.DomainEvent) *strings.Replacer {
	pairs := []string{
		"{kind}", string(evt.Kind),
		"{actor}", evt.Actor(),
		"{subject}", evt.Subject(),
		"{tx_hash}", evt.TxHash.Hex(),
		"{height}", strconv.FormatUint(evt.Height, 10),
	}

	if evt.Badge != nil {
		pairs = append(pairs,
			"{badge_id}", evt.Badge.BadgeID,
			"{recipient}", evt.Badge.Recipient,
			"{owner}", evt.Badge.Recipient,
			"{category}", evt.Badge.Category,
		)
	}

	if evt.Community != nil {
		pairs = append(pairs,
			"{community_id}", evt.Community.CommunityID,
			"{creator}", evt.Community.Creator,
			"{owner}", evt.Community.Creator,
		)
	}

	return strings.NewReplacer(pairs...)
}

// builtinRules is the static rule table seeded into every RuleSet, one rule
// per domain event kind.
func builtinRules() []Rule {
	return []Rule{
		{
			Kind:        event.KindBadgeMinted,
			Name:        "badge-minted",
			Keys:        []string{"badge:{badge_id}"},
			Patterns:    []string{"badges:user:{recipient}:*", "badges:list:*"},
			Rewarm:      true,
			Description: "a minted badge dirties its record, the owner's badge lists and every badge listing",
		},
		{
			Kind:        event.KindBadgeRevoked,
			Name:        "badge-revoked",
			Keys:        []string{"badge:{badge_id}"},
			Patterns:    []string{"badges:user:{recipient}:*", "badges:list:*"},
			Description: "a revoked badge dirties its record, the owner's badge lists and every badge listing",
		},
		{
			Kind:        event.KindBadgeMetadataUpdated,
			Name:        "badge-metadata-updated",
			Keys:        []string{"badge:{badge_id}", "badge:{badge_id}:metadata"},
			Patterns:    []string{"badges:list:*"},
			Rewarm:      true,
			Description: "updated metadata dirties the badge record and listings that embed it",
		},
		{
			Kind:        event.KindCommunityCreated,
			Name:        "community-created",
			Keys:        []string{"communities:admin:{creator}:count"},
			Patterns:    []string{"communities:list:*"},
			Description: "a new community dirties the community listings and the creator's admin count",
		},
	}
}

// RuleSet holds the invalidation rule per event kind: the built-in table
// seeded at construction plus any rules added at runtime or from
// configuration. One rule per kind; adding a kind that already has a rule
// replaces it.
type RuleSet struct {
	mu    sync.RWMutex
	rules map[event.Kind]*Rule
}

// NewRuleSet builds a rule set containing the built-in rules.
func NewRuleSet() *RuleSet {
	rs := &RuleSet{rules: make(map[event.Kind]*Rule)}

	for _, rule := range builtinRules() {
		r := rule
		rs.rules[r.Kind] = &r
	}

	return rs
}

// NewRuleSetFromConfig seeds the built-ins and layers the configured rules
// on top.
func NewRuleSetFromConfig(cfgRules []config.RuleConfig) (*RuleSet, error) {
	rs := NewRuleSet()

	for _, rc := range cfgRules {
		for _, kindName := range rc.EventKinds {
			rule := Rule{
				Kind: event.Kind(kindName),
				Name: rc.Name,
				Keys: rc.KeyTemplates,
			}

			if err := rs.Add(rule); err != nil {
				return nil, fmt.Errorf("invalidation rule %q: %w", rc.Name, err)
			}
		}
	}

	return rs, nil
}

// Lookup returns the rule for the kind, reporting absence via the bool.
func (rs *RuleSet) Lookup(kind event.Kind) (*Rule, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rule, ok := rs.rules[kind]

	return rule, ok
}

// Add installs (or replaces) the rule for its kind. Patterns must convert
// to valid match expressions.
func (rs *RuleSet) Add(rule Rule) error {
	if !rule.Kind.Valid() {
		return fmt.Errorf("unknown event kind %q", rule.Kind)
	}

	if len(rule.Keys) == 0 && len(rule.Patterns) == 0 {
		return fmt.Errorf("rule for %s has neither keys nor patterns", rule.Kind)
	}

	// Reject templates whose wildcard form cannot compile, so a bad rule
	// fails at registration rather than per event.
	for _, template := range append(append([]string{}, rule.Keys...), rule.Patterns...) {
		if !strings.Contains(template, "*") {
			continue
		}

		if _, err := compileWildcard(probeResolve(template)); err != nil {
			return fmt.Errorf("pattern %q: %w", template, err)
		}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	r := rule
	rs.rules[r.Kind] = &r

	return nil
}

// Remove deletes the rule for the kind, reporting whether one existed.
func (rs *RuleSet) Remove(kind event.Kind) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, ok := rs.rules[kind]; !ok {
		return false
	}

	delete(rs.rules, kind)

	return true
}

// Snapshot returns a copy of every installed rule, ordered by kind.
func (rs *RuleSet) Snapshot() []Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	rules := make([]Rule, 0, len(rs.rules))

	for _, kind := range event.AllKinds() {
		if rule, ok := rs.rules[kind]; ok {
			rules = append(rules, *rule)
		}
	}

	return rules
}

// probeResolve substitutes every placeholder with a probe value, leaving
// wildcards in place, so a template's pattern shape can be validated
// without a real event.
func probeResolve(template string) string {
	return placeholderRe.ReplaceAllString(template, "probe")
}

var placeholderRe = regexp.MustCompile(`\{[a-z_]+\}`)
