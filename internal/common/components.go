package common

const (
	ComponentIngest           = "ingest"
	ComponentClassifier       = "classifier"
	ComponentRoutingTable     = "routing-table"
	ComponentCacheInvalidator = "cache-invalidator"
	ComponentDispatcher       = "notification-dispatcher"
	ComponentReorgCoordinator = "reorg-coordinator"
	ComponentJournal          = "rollback-journal"
	ComponentMaintenance      = "maintenance"
	ComponentAPI              = "api"
)

var AllComponents = map[string]struct{}{
	ComponentIngest:           {},
	ComponentClassifier:       {},
	ComponentRoutingTable:     {},
	ComponentCacheInvalidator: {},
	ComponentDispatcher:       {},
	ComponentReorgCoordinator: {},
	ComponentJournal:          {},
	ComponentMaintenance:      {},
	ComponentAPI:              {},
}
