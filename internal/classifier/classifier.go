package classifier

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/goran-ethernal/ChainReactor/internal/chain"
	internalcommon "github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/event"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
)

// Fallback values used when a contract call or log entry does not carry the
// expected field.
const (
	DefaultBadgeName     = "Achievement Badge"
	DefaultBadgeCategory = "achievement"
	DefaultBadgeLevel    = 1
	DefaultRecipient     = "unknown"
	DefaultCommunityName = "Community"
)

// builtinMethods maps each event kind to the contract-call method names that
// identify it. Method names are normalized (lowercase, "_" folded to "-")
// before lookup, so "Mint_Badge" and "mint-badge" are the same method.
var builtinMethods = map[event.Kind][]string{
	event.KindBadgeMinted:          {"mint", "mint-badge", "nft-mint"},
	event.KindBadgeRevoked:         {"revoke", "revoke-badge", "burn-badge"},
	event.KindBadgeMetadataUpdated: {"update-metadata", "set-metadata", "update-badge-metadata"},
	event.KindCommunityCreated:     {"create-community", "register-community"},
}

// Classifier turns chain-event batches into typed domain events. It never
// fails: malformed or missing fields degrade to documented defaults, and a
// batch with no classifiable transactions yields an empty result. Safe for
// concurrent use.
type Classifier struct {
	log        *logger.Logger
	memo       *resultMemo
	methodKind map[string]event.Kind
}

// New builds a Classifier from its configuration. Extra method names from
// the config extend the built-in allow-lists; a method already claimed by a
// built-in kind cannot be remapped.
func New(cfg config.ClassifierConfig, log *logger.Logger) *Classifier {
	methodKind := make(map[string]event.Kind)

	for _, kind := range event.AllKinds() {
		for _, method := range builtinMethods[kind] {
			methodKind[normalizeMethod(method)] = kind
		}
	}

	for kindName, extra := range cfg.ExtraMethods {
		kind := event.Kind(kindName)
		if !kind.Valid() {
			log.Warnf("ignoring extra classifier methods for unknown event kind %q", kindName)
			continue
		}

		for _, method := range extra {
			normalized := normalizeMethod(method)
			if existing, taken := methodKind[normalized]; taken && existing != kind {
				log.Warnf("classifier method %q already mapped to %s, not remapping to %s", method, existing, kind)
				continue
			}
			methodKind[normalized] = kind
		}
	}

	return &Classifier{
		log:        log,
		memo:       newResultMemo(cfg.MemoSize, cfg.MemoTTL.Duration),
		methodKind: methodKind,
	}
}

// Classify walks every transaction of the batch and returns the domain
// events it represents, in transaction order. Results are memoized per
// (block height, transaction hash) for a short TTL. An empty or nil batch
// classifies to an empty set, not an error.
func (c *Classifier) Classify(batch *chain.EventBatch) []*event.DomainEvent {
	if batch == nil || len(batch.Transactions) == 0 {
		return nil
	}

	events := make([]*event.DomainEvent, 0, len(batch.Transactions))

	for i := range batch.Transactions {
		tx := &batch.Transactions[i]

		if cached, ok := c.memo.get(batch.Block.Index, tx.Hash); ok {
			metrics.ClassifierMemoHitInc()
			events = append(events, cached...)

			continue
		}

		classified := c.classifyTransaction(batch, tx)
		c.memo.put(batch.Block.Index, tx.Hash, classified)
		events = append(events, classified...)
	}

	return events
}

// MemoStats returns memo cache hit and miss counts.
func (c *Classifier) MemoStats() (hits, misses int64) {
	return c.memo.stats()
}

// classifyTransaction resolves one transaction to its domain events. The
// first structural match wins: contract-call methods are checked across all
// operations before any log topic is considered.
func (c *Classifier) classifyTransaction(batch *chain.EventBatch, tx *chain.Transaction) []*event.DomainEvent {
	for i := range tx.Operations {
		call := tx.Operations[i].ContractCall
		if call == nil {
			continue
		}

		kind, ok := c.methodKind[normalizeMethod(call.Method)]
		if !ok {
			continue
		}

		evt := c.eventFromCall(kind, batch, tx, call)
		metrics.EventClassifiedInc(string(kind))
		c.log.Debugw("classified transaction from contract call",
			"kind", kind, "method", call.Method, "txHash", tx.Hash, "block", batch.Block.Index)

		return []*event.DomainEvent{evt}
	}

	for i := range tx.Operations {
		for j := range tx.Operations[i].Events {
			logEntry := &tx.Operations[i].Events[j]

			kind, ok := topicKind(logEntry.Topic)
			if !ok {
				continue
			}

			evt := c.eventFromLog(kind, batch, tx, logEntry)
			metrics.EventClassifiedInc(string(kind))
			c.log.Debugw("classified transaction from log topic",
				"kind", kind, "topic", logEntry.Topic, "txHash", tx.Hash, "block", batch.Block.Index)

			return []*event.DomainEvent{evt}
		}
	}

	metrics.EventUnclassifiedInc()

	return nil
}

func (c *Classifier) newEvent(kind event.Kind, batch *chain.EventBatch, tx *chain.Transaction) *event.DomainEvent {
	evt := event.New(kind)
	evt.ChainID = batch.ChainID()
	evt.TxHash = tx.Hash
	evt.Height = batch.Block.Index
	evt.Timestamp = batch.EventTimestamp()

	return evt
}

func (c *Classifier) eventFromCall(
	kind event.Kind, batch *chain.EventBatch, tx *chain.Transaction, call *chain.ContractCall,
) *event.DomainEvent {
	evt := c.newEvent(kind, batch, tx)
	evt.Contract = call.ContractAddress
	evt.Method = call.Method

	args := call.Args

	switch kind {
	case event.KindBadgeMinted:
		evt.Badge = &event.BadgePayload{
			Recipient: argString(args, 0, DefaultRecipient),
			BadgeID:   argString(args, 1, derivedID("badge", tx.Hash)),
			Name:      argString(args, 2, DefaultBadgeName),
			Category:  argString(args, 3, DefaultBadgeCategory),
			Level:     argInt(args, 4, DefaultBadgeLevel),
		}
	case event.KindBadgeRevoked:
		evt.Badge = &event.BadgePayload{
			Recipient: argString(args, 0, DefaultRecipient),
			BadgeID:   argString(args, 1, derivedID("badge", tx.Hash)),
			Reason:    argString(args, 2, ""),
		}
	case event.KindBadgeMetadataUpdated:
		evt.Badge = &event.BadgePayload{
			BadgeID:     argString(args, 0, derivedID("badge", tx.Hash)),
			MetadataURI: argString(args, 1, ""),
			Recipient:   argString(args, 2, DefaultRecipient),
		}
	case event.KindCommunityCreated:
		evt.Community = &event.CommunityPayload{
			CommunityID: argString(args, 0, derivedID("community", tx.Hash)),
			Name:        argString(args, 1, DefaultCommunityName),
			Creator:     argString(args, 2, DefaultRecipient),
		}
	}

	return evt
}

func (c *Classifier) eventFromLog(
	kind event.Kind, batch *chain.EventBatch, tx *chain.Transaction, logEntry *chain.LogEvent,
) *event.DomainEvent {
	evt := c.newEvent(kind, batch, tx)

	var fields map[string]any
	if len(logEntry.Value) > 0 {
		if err := json.Unmarshal(logEntry.Value, &fields); err != nil {
			c.log.Debugw("unparseable log value, extracting with defaults",
				"topic", logEntry.Topic, "txHash", tx.Hash, "err", err)
		}
	}

	if addr, ok := fieldString(fields, "contract", "contract_address", "address"); ok {
		evt.Contract = common.HexToAddress(addr)
	}

	switch kind {
	case event.KindBadgeMinted:
		evt.Badge = &event.BadgePayload{
			Recipient: fieldStringOr(fields, DefaultRecipient, "recipient", "user", "owner", "to"),
			BadgeID:   fieldStringOr(fields, derivedID("badge", tx.Hash), "badge_id", "badgeId", "id"),
			Name:      fieldStringOr(fields, DefaultBadgeName, "name", "badge_name", "badgeName"),
			Category:  fieldStringOr(fields, DefaultBadgeCategory, "category"),
			Level:     fieldIntOr(fields, DefaultBadgeLevel, "level"),
		}
	case event.KindBadgeRevoked:
		evt.Badge = &event.BadgePayload{
			Recipient: fieldStringOr(fields, DefaultRecipient, "recipient", "user", "owner", "from"),
			BadgeID:   fieldStringOr(fields, derivedID("badge", tx.Hash), "badge_id", "badgeId", "id"),
			Reason:    fieldStringOr(fields, "", "reason"),
		}
	case event.KindBadgeMetadataUpdated:
		evt.Badge = &event.BadgePayload{
			BadgeID:     fieldStringOr(fields, derivedID("badge", tx.Hash), "badge_id", "badgeId", "id"),
			MetadataURI: fieldStringOr(fields, "", "uri", "metadata_uri", "metadataUri", "url"),
			Recipient:   fieldStringOr(fields, DefaultRecipient, "owner", "recipient", "user"),
		}
	case event.KindCommunityCreated:
		evt.Community = &event.CommunityPayload{
			CommunityID: fieldStringOr(fields, derivedID("community", tx.Hash), "community_id", "communityId", "id"),
			Name:        fieldStringOr(fields, DefaultCommunityName, "name"),
			Creator:     fieldStringOr(fields, DefaultRecipient, "creator", "admin", "owner"),
		}
	}

	return evt
}

// topicKind matches a log topic against the substring markers. Markers are
// tested most specific first: a topic naming both "metadata" and "mint" is a
// metadata update, not a mint.
func topicKind(topic string) (event.Kind, bool) {
	t := strings.ToLower(topic)

	switch {
	case strings.Contains(t, "community") && strings.Contains(t, "creat"):
		return event.KindCommunityCreated, true
	case strings.Contains(t, "metadata"):
		return event.KindBadgeMetadataUpdated, true
	case strings.Contains(t, "revoke") || strings.Contains(t, "burn"):
		return event.KindBadgeRevoked, true
	case strings.Contains(t, "mint"):
		return event.KindBadgeMinted, true
	}

	return "", false
}

func normalizeMethod(method string) string {
	return strings.ReplaceAll(internalcommon.ToLowerWithTrim(method), "_", "-")
}

// derivedID builds a stable fallback identifier from the transaction hash.
func derivedID(prefix string, txHash common.Hash) string {
	return fmt.Sprintf("%s-%s", prefix, txHash.Hex()[2:10])
}

// argString returns the i-th positional argument as a string, or fallback
// when the argument is absent, nil or empty.
func argString(args []any, i int, fallback string) string {
	if i >= len(args) || args[i] == nil {
		return fallback
	}

	switch v := args[i].(type) {
	case string:
		if v == "" {
			return fallback
		}

		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// argInt returns the i-th positional argument as an int, or fallback when
// the argument is absent or not numeric.
func argInt(args []any, i int, fallback int) int {
	if i >= len(args) || args[i] == nil {
		return fallback
	}

	switch v := args[i].(type) {
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}

	return fallback
}

func fieldString(fields map[string]any, names ...string) (string, bool) {
	for _, name := range names {
		v, ok := fields[name]
		if !ok || v == nil {
			continue
		}

		switch s := v.(type) {
		case string:
			if s != "" {
				return s, true
			}
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64), true
		}
	}

	return "", false
}

func fieldStringOr(fields map[string]any, fallback string, names ...string) string {
	if s, ok := fieldString(fields, names...); ok {
		return s
	}

	return fallback
}

func fieldIntOr(fields map[string]any, fallback int, names ...string) int {
	for _, name := range names {
		switch v := fields[name].(type) {
		case float64:
			return int(v)
		case string:
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
		}
	}

	return fallback
}
