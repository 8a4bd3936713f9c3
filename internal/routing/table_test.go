package routing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()

	return New(config.RoutingConfig{RouteLogCapacity: 16}, logger.NewNopLogger())
}

// callRecorder collects handler invocations across goroutines.
type callRecorder struct {
	mu    sync.Mutex
	calls []string
}

func (c *callRecorder) handler(name string) Handler {
	return func(context.Context, *event.DomainEvent) error {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.calls = append(c.calls, name)

		return nil
	}
}

func (c *callRecorder) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.calls...)
}

func TestTable_RegisterAndRules(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)

	mintID, err := table.Register("badge-mints", Filter{Kind: event.KindBadgeMinted})
	require.NoError(t, err)
	require.NotEmpty(t, mintID)

	allID, err := table.Register("everything", Filter{})
	require.NoError(t, err)

	rules := table.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, mintID, rules[0].ID)
	assert.Equal(t, "badge-mints", rules[0].Name)
	assert.True(t, rules[0].Enabled)
	assert.Zero(t, rules[0].HandlerCount)
	assert.Equal(t, allID, rules[1].ID)

	rule, ok := table.Get(mintID)
	require.True(t, ok)
	assert.Equal(t, event.KindBadgeMinted, rule.Filter.Kind)

	_, ok = table.Get("nope")
	assert.False(t, ok)
}

func TestTable_RegisterRejectsEmptyName(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)

	_, err := table.Register("", Filter{})
	require.ErrorIs(t, err, ErrEmptyRuleName)
}

func TestTable_UnknownRuleMutationsReturnFalse(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	noop := func(context.Context, *event.DomainEvent) error { return nil }

	assert.False(t, table.AddHandler("missing", noop))
	assert.False(t, table.RemoveHandler("missing", 0))
	assert.False(t, table.Enable("missing"))
	assert.False(t, table.Disable("missing"))
	assert.False(t, table.Delete("missing"))

	ruleID, err := table.Register("real", Filter{})
	require.NoError(t, err)
	assert.False(t, table.AddHandler(ruleID, nil))
}

func TestTable_Dispatch_RunsMatchingRules(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	mintID, err := table.Register("mints", Filter{Kind: event.KindBadgeMinted})
	require.NoError(t, err)
	require.True(t, table.AddHandler(mintID, rec.handler("mint")))

	revokeID, err := table.Register("revokes", Filter{Kind: event.KindBadgeRevoked})
	require.NoError(t, err)
	require.True(t, table.AddHandler(revokeID, rec.handler("revoke")))

	matched := table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))
	assert.Equal(t, 1, matched)
	assert.Equal(t, []string{"mint"}, rec.snapshot())

	entries := table.RouteLog()
	require.Len(t, entries, 1)
	assert.Equal(t, mintID, entries[0].RuleID)
	assert.Equal(t, "mints", entries[0].RuleName)
	assert.Equal(t, event.KindBadgeMinted, entries[0].Kind)
}

func TestTable_Dispatch_SequentialWithinRule(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	ruleID, err := table.Register("chain", Filter{})
	require.NoError(t, err)

	for _, name := range []string{"first", "second", "third"} {
		require.True(t, table.AddHandler(ruleID, rec.handler(name)))
	}

	table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))

	assert.Equal(t, []string{"first", "second", "third"}, rec.snapshot())
}

func TestTable_Dispatch_RulesRunConcurrently(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)

	// Each handler waits for the other to enter; dispatch can only finish
	// if the two matching rules run at the same time.
	var entered atomic.Int32

	barrier := make(chan struct{})
	meet := func(context.Context, *event.DomainEvent) error {
		if entered.Add(1) == 2 {
			close(barrier)
		}
		<-barrier

		return nil
	}

	for _, name := range []string{"left", "right"} {
		ruleID, err := table.Register(name, Filter{})
		require.NoError(t, err)
		require.True(t, table.AddHandler(ruleID, meet))
	}

	matched := table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))
	assert.Equal(t, 2, matched)
}

func TestTable_Dispatch_HandlerErrorDoesNotAbortChain(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	ruleID, err := table.Register("flaky", Filter{})
	require.NoError(t, err)

	require.True(t, table.AddHandler(ruleID, func(context.Context, *event.DomainEvent) error {
		return errors.New("boom")
	}))
	require.True(t, table.AddHandler(ruleID, rec.handler("survivor")))

	matched := table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))
	assert.Equal(t, 1, matched)
	assert.Equal(t, []string{"survivor"}, rec.snapshot())
	assert.Equal(t, uint64(1), table.Stats().HandlerErrors)
}

func TestTable_Dispatch_HandlerPanicIsIsolated(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	panickyID, err := table.Register("panicky", Filter{})
	require.NoError(t, err)
	require.True(t, table.AddHandler(panickyID, func(context.Context, *event.DomainEvent) error {
		panic("handler exploded")
	}))
	require.True(t, table.AddHandler(panickyID, rec.handler("after-panic")))

	siblingID, err := table.Register("sibling", Filter{})
	require.NoError(t, err)
	require.True(t, table.AddHandler(siblingID, rec.handler("sibling")))

	matched := table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))
	assert.Equal(t, 2, matched)
	assert.ElementsMatch(t, []string{"after-panic", "sibling"}, rec.snapshot())
	assert.Equal(t, uint64(1), table.Stats().HandlerErrors)
}

func TestTable_Dispatch_DisabledRuleSkipped(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	ruleID, err := table.Register("toggle", Filter{})
	require.NoError(t, err)
	require.True(t, table.AddHandler(ruleID, rec.handler("toggle")))

	require.True(t, table.Disable(ruleID))
	assert.Zero(t, table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100)))
	assert.Empty(t, rec.snapshot())

	require.True(t, table.Enable(ruleID))
	assert.Equal(t, 1, table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100)))
	assert.Equal(t, []string{"toggle"}, rec.snapshot())
}

func TestTable_Dispatch_NilEvent(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	assert.Zero(t, table.Dispatch(t.Context(), nil))
}

func TestTable_RemoveHandler(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	ruleID, err := table.Register("trimmed", Filter{})
	require.NoError(t, err)

	for _, name := range []string{"first", "second", "third"} {
		require.True(t, table.AddHandler(ruleID, rec.handler(name)))
	}

	require.True(t, table.RemoveHandler(ruleID, 1))
	assert.False(t, table.RemoveHandler(ruleID, 2))

	table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))
	assert.Equal(t, []string{"first", "third"}, rec.snapshot())

	rule, ok := table.Get(ruleID)
	require.True(t, ok)
	assert.Equal(t, 2, rule.HandlerCount)
}

func TestTable_Delete(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)

	ruleID, err := table.Register("short-lived", Filter{})
	require.NoError(t, err)

	require.True(t, table.Delete(ruleID))
	assert.False(t, table.Delete(ruleID))
	assert.Empty(t, table.Rules())
	assert.Zero(t, table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100)))
}

func TestTable_Stats(t *testing.T) {
	t.Parallel()

	table := newTestTable(t)
	rec := &callRecorder{}

	for _, name := range []string{"one", "two"} {
		ruleID, err := table.Register(name, Filter{Kind: event.KindBadgeMinted})
		require.NoError(t, err)
		require.True(t, table.AddHandler(ruleID, rec.handler(name)))
	}

	table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, 100))
	table.Dispatch(t.Context(), routedEvent(event.KindCommunityCreated, 101))

	stats := table.Stats()
	assert.Equal(t, 2, stats.Rules)
	assert.Equal(t, 2, stats.EnabledRules)
	assert.Equal(t, uint64(2), stats.Dispatched)
	assert.Equal(t, uint64(2), stats.Matched)
	assert.Equal(t, uint64(1), stats.Unrouted)
	assert.Equal(t, uint64(1), stats.ByKind[string(event.KindBadgeMinted)])
	assert.Equal(t, uint64(1), stats.ByKind[string(event.KindCommunityCreated)])
	assert.Equal(t, 2, stats.RouteLogSize)
}

func TestTable_RouteLogEviction(t *testing.T) {
	t.Parallel()

	table := New(config.RoutingConfig{RouteLogCapacity: 2}, logger.NewNopLogger())

	ruleID, err := table.Register("everything", Filter{})
	require.NoError(t, err)
	require.True(t, table.AddHandler(ruleID, func(context.Context, *event.DomainEvent) error { return nil }))

	heights := []uint64{100, 101, 102}
	for _, h := range heights {
		table.Dispatch(t.Context(), routedEvent(event.KindBadgeMinted, h))
	}

	entries := table.RouteLog()
	require.Len(t, entries, 2)
	assert.Equal(t, ruleID, entries[0].RuleID)
}
