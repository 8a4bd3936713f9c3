// Package routing fans classified domain events out over a rule table.
// A rule pairs a filter with an ordered handler chain; rules matching a
// dispatched event run concurrently while the handlers inside one rule run
// sequentially. Handler failures are isolated so a broken reaction can
// never starve its siblings.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// ErrEmptyRuleName is returned by Register when no rule name is given.
var ErrEmptyRuleName = errors.New("rule name must not be empty")

// Stats is a snapshot of the table's dispatch counters.
type Stats struct {
	Rules         int               `json:"rules"`
	EnabledRules  int               `json:"enabled_rules"`
	Dispatched    uint64            `json:"dispatched"`
	Matched       uint64            `json:"matched"`
	Unrouted      uint64            `json:"unrouted"`
	HandlerErrors uint64            `json:"handler_errors"`
	ByKind        map[string]uint64 `json:"by_kind"`
	RouteLogSize  int               `json:"route_log_size"`
}

// Table holds the routing rules and drives dispatch.
type Table struct {
	log      *logger.Logger
	routeLog *routeLog

	mu    sync.RWMutex
	rules map[string]*Rule
	order []string

	statsMu       sync.Mutex
	dispatched    uint64
	matched       uint64
	unrouted      uint64
	handlerErrors uint64
	byKind        map[string]uint64
}

// New creates an empty routing table.
func New(cfg config.RoutingConfig, log *logger.Logger) *Table {
	t := &Table{
		log:      log.WithComponent(internalcommon.ComponentRoutingTable),
		routeLog: newRouteLog(cfg.RouteLogCapacity),
		rules:    make(map[string]*Rule),
		byKind:   make(map[string]uint64),
	}

	metrics.ComponentHealthSet(internalcommon.ComponentRoutingTable, true)

	t.log.Info("routing table initialized")

	return t
}

// Register adds a rule and returns its id. Rules start enabled and without
// handlers.
func (t *Table) Register(name string, filter Filter) (string, error) {
	if name == "" {
		return "", ErrEmptyRuleName
	}

	rule := &Rule{
		ID:      uuid.NewString(),
		Name:    name,
		Filter:  filter,
		Enabled: true,
	}

	t.mu.Lock()
	t.rules[rule.ID] = rule
	t.order = append(t.order, rule.ID)
	t.mu.Unlock()

	t.log.Infow("routing rule registered", "rule_id", rule.ID, "name", name)

	return rule.ID, nil
}

// AddHandler appends a handler to the rule's chain. False for unknown rules
// and nil handlers. The chain is rebuilt rather than grown in place, so a
// dispatch running off an older snapshot is never disturbed.
func (t *Table) AddHandler(ruleID string, handler Handler) bool {
	if handler == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rule, ok := t.rules[ruleID]
	if !ok {
		return false
	}

	handlers := make([]Handler, 0, len(rule.handlers)+1)
	handlers = append(handlers, rule.handlers...)
	rule.handlers = append(handlers, handler)

	return true
}

// RemoveHandler drops the handler at the given position in the rule's
// chain. False when the rule or position does not exist.
func (t *Table) RemoveHandler(ruleID string, index int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rule, ok := t.rules[ruleID]
	if !ok || index < 0 || index >= len(rule.handlers) {
		return false
	}

	handlers := make([]Handler, 0, len(rule.handlers)-1)
	handlers = append(handlers, rule.handlers[:index]...)
	rule.handlers = append(handlers, rule.handlers[index+1:]...)

	return true
}

// Enable turns the rule back on. False for unknown rules.
func (t *Table) Enable(ruleID string) bool {
	return t.setEnabled(ruleID, true)
}

// Disable stops the rule from matching without removing it. False for
// unknown rules.
func (t *Table) Disable(ruleID string) bool {
	return t.setEnabled(ruleID, false)
}

func (t *Table) setEnabled(ruleID string, enabled bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rule, ok := t.rules[ruleID]
	if !ok {
		return false
	}

	rule.Enabled = enabled

	return true
}

// Delete removes the rule entirely. False for unknown rules.
func (t *Table) Delete(ruleID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.rules[ruleID]; !ok {
		return false
	}

	delete(t.rules, ruleID)

	for i, id := range t.order {
		if id == ruleID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}

	return true
}

// Get returns a copy of one rule.
func (t *Table) Get(ruleID string) (Rule, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rule, ok := t.rules[ruleID]
	if !ok {
		return Rule{}, false
	}

	return ruleView(rule), true
}

// Rules returns the registered rules in registration order.
func (t *Table) Rules() []Rule {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rules := make([]Rule, 0, len(t.order))
	for _, id := range t.order {
		rules = append(rules, ruleView(t.rules[id]))
	}

	return rules
}

// RouteLog returns the most recent rule matches, newest first.
func (t *Table) RouteLog() []LogEntry {
	return t.routeLog.snapshot()
}

// Stats returns a snapshot of the table's counters.
func (t *Table) Stats() Stats {
	t.mu.RLock()

	rules := len(t.rules)
	enabled := 0

	for _, rule := range t.rules {
		if rule.Enabled {
			enabled++
		}
	}

	t.mu.RUnlock()

	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	byKind := make(map[string]uint64, len(t.byKind))
	for kind, count := range t.byKind {
		byKind[kind] = count
	}

	return Stats{
		Rules:         rules,
		EnabledRules:  enabled,
		Dispatched:    t.dispatched,
		Matched:       t.matched,
		Unrouted:      t.unrouted,
		HandlerErrors: t.handlerErrors,
		ByKind:        byKind,
		RouteLogSize:  t.routeLog.len(),
	}
}

// matchedRule is the dispatch-time snapshot of a rule. Handler chains are
// copy-on-write, so holding the slice outside the lock is safe.
type matchedRule struct {
	id       string
	name     string
	handlers []Handler
}

// Dispatch runs every enabled rule whose filter matches the event. Matching
// rules run concurrently; the handlers of one rule run sequentially in the
// order they were added, each awaited. A handler error or panic is logged
// and counted, never propagated. Returns the number of matched rules.
func (t *Table) Dispatch(ctx context.Context, evt *event.DomainEvent) int {
	if evt == nil {
		return 0
	}

	t.mu.RLock()

	matched := make([]matchedRule, 0, len(t.order))

	for _, id := range t.order {
		rule := t.rules[id]
		if rule.Enabled && rule.Filter.Matches(evt) {
			matched = append(matched, matchedRule{id: rule.ID, name: rule.Name, handlers: rule.handlers})
		}
	}

	t.mu.RUnlock()

	t.noteDispatch(evt.Kind, len(matched))
	metrics.EventDispatched(string(evt.Kind), len(matched))

	if len(matched) == 0 {
		t.log.Debugw("event matched no routing rule", "event_id", evt.ID, "kind", evt.Kind)

		return 0
	}

	now := time.Now().UTC()
	for _, rule := range matched {
		t.routeLog.add(LogEntry{
			RuleID:    rule.id,
			RuleName:  rule.name,
			EventID:   evt.ID,
			Kind:      evt.Kind,
			Timestamp: now,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, rule := range matched {
		g.Go(func() error {
			t.runChain(gctx, rule, evt)

			return nil
		})
	}

	// Handlers never push errors upward; Wait just joins the rule goroutines.
	_ = g.Wait()

	return len(matched)
}

// runChain executes the rule's handlers in order, isolating each one.
func (t *Table) runChain(ctx context.Context, rule matchedRule, evt *event.DomainEvent) {
	for i, handler := range rule.handlers {
		if err := t.runHandler(ctx, handler, evt); err != nil {
			t.noteHandlerError()
			metrics.HandlerErrorInc(string(evt.Kind))
			t.log.Errorw("routing handler failed",
				"rule_id", rule.id,
				"rule_name", rule.name,
				"handler_index", i,
				"event_id", evt.ID,
				"kind", evt.Kind,
				"error", err,
			)
		}
	}
}

func (t *Table) runHandler(ctx context.Context, handler Handler, evt *event.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	return handler(ctx, evt)
}

func (t *Table) noteDispatch(kind event.Kind, matched int) {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()

	t.dispatched++
	t.byKind[string(kind)]++

	if matched == 0 {
		t.unrouted++

		return
	}

	t.matched += uint64(matched)
}

func (t *Table) noteHandlerError() {
	t.statsMu.Lock()
	t.handlerErrors++
	t.statsMu.Unlock()
}

func ruleView(rule *Rule) Rule {
	view := *rule
	view.HandlerCount = len(rule.handlers)
	view.handlers = nil

	return view
}
