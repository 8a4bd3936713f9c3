package helpers

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"net"
	"net/http"
	"path"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReactor/internal/cache"
	"github.com/goran-ethernal/ChainReactor/internal/chain"
	"github.com/goran-ethernal/ChainReactor/internal/classifier"
	"github.com/goran-ethernal/ChainReactor/internal/common"
	"github.com/goran-ethernal/ChainReactor/internal/db"
	"github.com/goran-ethernal/ChainReactor/internal/invalidation"
	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/migrations"
	"github.com/goran-ethernal/ChainReactor/internal/notify"
	"github.com/goran-ethernal/ChainReactor/internal/pipeline"
	"github.com/goran-ethernal/ChainReactor/internal/reorg"
	"github.com/goran-ethernal/ChainReactor/internal/routing"
	"github.com/goran-ethernal/ChainReactor/internal/store"
	"github.com/goran-ethernal/ChainReactor/pkg/api"
	"github.com/goran-ethernal/ChainReactor/pkg/config"
	"github.com/stretchr/testify/require"
)

// FreePort asks the kernel for a free open port that is ready to use.
func FreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "failed to get free port")

	port := listener.Addr().(*net.TCPAddr).Port

	err = listener.Close()
	require.NoError(t, err, "failed to close port listener")

	return port
}

// Stack wires every production component over a temporary SQLite database
// and an in-memory cache, the same construction order the reactor binary
// uses. The reactor worker is started; callers submit batches directly or
// through StartAPI.
type Stack struct {
	DB          *sql.DB
	Models      *store.Models
	Journal     *store.Journal
	Projection  *store.Projection
	History     *store.NotificationLog
	Ledger      *store.BatchLedger
	Cache       *cache.MemoryStore
	Invalidator *invalidation.Invalidator
	Dispatcher  *notify.Dispatcher
	Hub         *notify.Hub
	Coordinator *reorg.Coordinator
	Classifier  *classifier.Classifier
	Table       *routing.Table
	Reactor     *pipeline.Reactor
	Handlers    map[string]routing.Handler
	Log         *logger.Logger
}

// NewStack builds and starts a full reaction pipeline for one test.
// Everything is torn down through t.Cleanup in reverse construction order.
func NewStack(t *testing.T) *Stack {
	t.Helper()

	dbPath := path.Join(t.TempDir(), "reactor_integration.db")
	require.NoError(t, migrations.RunMigrations(dbPath))

	dbConfig := config.DatabaseConfig{Path: dbPath}
	dbConfig.ApplyDefaults()

	database, err := db.NewSQLiteDBFromConfig(dbConfig)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	log, err := logger.NewLogger("info", false)
	require.NoError(t, err)

	models := store.NewModels(database, log)
	journal := store.NewJournal(database, log)
	projection := store.NewProjection(database, models, journal, log)
	history := store.NewNotificationLog(database, log)
	ledger := store.NewBatchLedger(database, log)

	memStore := cache.NewMemoryStore("badges", 1024, time.Minute)

	invalidatorCfg := config.InvalidatorConfig{
		RewarmQueueSize: 16,
		RewarmInterval:  common.NewDuration(time.Hour),
		RewarmTimeout:   common.NewDuration(time.Second),
	}
	invalidator := invalidation.New(invalidatorCfg, time.Minute, invalidation.NewRuleSet(), log)
	invalidator.RegisterStore(memStore)
	t.Cleanup(invalidator.Close)

	dispatcherCfg := config.DispatcherConfig{
		BatchSize:         1,
		BatchInterval:     common.NewDuration(20 * time.Millisecond),
		MaxRetries:        1,
		RetryBackoff:      common.NewDuration(time.Millisecond),
		MaxBackoff:        common.NewDuration(5 * time.Millisecond),
		BackoffMultiplier: 2.0,
		QueueSize:         64,
	}
	dispatcher := notify.New(dispatcherCfg, log)
	t.Cleanup(dispatcher.Destroy)
	require.NoError(t, dispatcher.RegisterChannel(notify.NewInAppChannel("inapp", 64)))
	dispatcher.SetHistorySink(history)

	hub := notify.NewHub(log)
	t.Cleanup(func() { _ = hub.Close() })

	coordinator := reorg.NewCoordinator(journal, models, invalidator, nil, log)
	coordinator.SetAnnouncer(hub)
	coordinator.SetRecorder(dispatcher)

	classifierCfg := config.ClassifierConfig{}
	classifierCfg.ApplyDefaults()
	cls := classifier.New(classifierCfg, log)

	table := routing.New(config.RoutingConfig{RouteLogCapacity: 128}, log)

	handlers := map[string]routing.Handler{
		"invalidation": pipeline.InvalidationHandler(invalidator),
		"projection":   pipeline.ProjectionHandler(projection, log),
		"notification": pipeline.NotificationHandler(dispatcher, notify.DeliveryAll),
	}
	for _, name := range []string{"invalidation", "projection", "notification"} {
		ruleID, err := table.Register(name, routing.Filter{})
		require.NoError(t, err)
		require.True(t, table.AddHandler(ruleID, handlers[name]))
	}

	reactor := pipeline.New(config.IngestConfig{QueueSize: 32}, cls, table, coordinator, ledger, log)
	reactor.Start(context.Background())
	t.Cleanup(reactor.Stop)

	return &Stack{
		DB:          database,
		Models:      models,
		Journal:     journal,
		Projection:  projection,
		History:     history,
		Ledger:      ledger,
		Cache:       memStore,
		Invalidator: invalidator,
		Dispatcher:  dispatcher,
		Hub:         hub,
		Coordinator: coordinator,
		Classifier:  cls,
		Table:       table,
		Reactor:     reactor,
		Handlers:    handlers,
		Log:         log,
	}
}

// StartAPI boots the HTTP surface over the stack on a free local port and
// blocks until /health responds. Returns the base URL.
func (s *Stack) StartAPI(t *testing.T, ingestCfg config.IngestConfig) string {
	t.Helper()

	apiCfg := &config.APIConfig{
		Enabled:       true,
		ListenAddress: fmt.Sprintf("127.0.0.1:%d", FreePort(t)),
		CORS: config.CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
	}
	apiCfg.ApplyDefaults()

	server := api.NewServer(apiCfg, ingestCfg, api.Deps{
		Reactor:      s.Reactor,
		Rules:        s.Table,
		Invalidator:  s.Invalidator,
		Dispatcher:   s.Dispatcher,
		Coordinator:  s.Coordinator,
		Journal:      s.Journal,
		History:      s.History,
		Hub:          s.Hub,
		Caches:       []cache.Store{s.Cache},
		RuleHandlers: s.Handlers,
	}, s.Log)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() {
		if err := server.Start(ctx); err != nil {
			t.Logf("API server error: %v", err)
		}
	}()

	baseURL := "http://" + apiCfg.ListenAddress

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return false
		}
		defer resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "API server did not become ready")

	return baseURL
}

// BlockHash derives a deterministic, non-zero block hash for a test height.
func BlockHash(height uint64) ethcommon.Hash {
	var h ethcommon.Hash
	h[0] = 0xb0
	binary.BigEndian.PutUint64(h[24:], height)

	return h
}

// TxHash derives a deterministic, non-zero transaction hash.
func TxHash(height, nonce uint64) ethcommon.Hash {
	var h ethcommon.Hash
	h[0] = 0xaa
	binary.BigEndian.PutUint64(h[16:24], height)
	binary.BigEndian.PutUint64(h[24:], nonce)

	return h
}

// MintBatch builds a webhook batch carrying one badge mint contract call.
func MintBatch(batchID string, height uint64, recipient, badgeID string) *chain.EventBatch {
	return &chain.EventBatch{
		BatchID:     batchID,
		Block:       chain.BlockIdentifier{Index: height, Hash: BlockHash(height)},
		ParentBlock: chain.BlockIdentifier{Index: height - 1, Hash: BlockHash(height - 1)},
		Transactions: []chain.Transaction{{
			Hash: TxHash(height, 1),
			Operations: []chain.Operation{{
				Type: chain.OpContractCall,
				ContractCall: &chain.ContractCall{
					ContractAddress: ethcommon.HexToAddress("0xbadd"),
					Method:          "mint",
					Args:            []any{recipient, badgeID, "Integration Badge", "achievement", "2"},
				},
			}},
		}},
		Metadata: chain.BatchMetadata{Position: height, ChainID: 1},
	}
}

// RevokeBatch builds a webhook batch carrying one badge revocation call.
func RevokeBatch(batchID string, height uint64, recipient, badgeID, reason string) *chain.EventBatch {
	return &chain.EventBatch{
		BatchID:     batchID,
		Block:       chain.BlockIdentifier{Index: height, Hash: BlockHash(height)},
		ParentBlock: chain.BlockIdentifier{Index: height - 1, Hash: BlockHash(height - 1)},
		Transactions: []chain.Transaction{{
			Hash: TxHash(height, 2),
			Operations: []chain.Operation{{
				Type: chain.OpContractCall,
				ContractCall: &chain.ContractCall{
					ContractAddress: ethcommon.HexToAddress("0xbadd"),
					Method:          "revoke",
					Args:            []any{recipient, badgeID, reason},
				},
			}},
		}},
		Metadata: chain.BatchMetadata{Position: height, ChainID: 1},
	}
}

// CommunityBatch builds a webhook batch carrying one community creation call.
func CommunityBatch(batchID string, height uint64, communityID, name, creator string) *chain.EventBatch {
	return &chain.EventBatch{
		BatchID:     batchID,
		Block:       chain.BlockIdentifier{Index: height, Hash: BlockHash(height)},
		ParentBlock: chain.BlockIdentifier{Index: height - 1, Hash: BlockHash(height - 1)},
		Transactions: []chain.Transaction{{
			Hash: TxHash(height, 3),
			Operations: []chain.Operation{{
				Type: chain.OpContractCall,
				ContractCall: &chain.ContractCall{
					ContractAddress: ethcommon.HexToAddress("0xc0de"),
					Method:          "create-community",
					Args:            []any{communityID, name, creator},
				},
			}},
		}},
		Metadata: chain.BatchMetadata{Position: height, ChainID: 1},
	}
}

// ReorgBatch builds the rollback signal an indexer sends when history above
// rollbackTo is no longer canonical.
func ReorgBatch(batchID string, newHeight, rollbackTo uint64) *chain.EventBatch {
	return &chain.EventBatch{
		BatchID:    batchID,
		Block:      chain.BlockIdentifier{Index: newHeight, Hash: BlockHash(newHeight + 100000)},
		RollbackTo: &chain.BlockIdentifier{Index: rollbackTo, Hash: BlockHash(rollbackTo)},
		Reorg:      true,
		Metadata:   chain.BatchMetadata{ChainID: 1},
	}
}
