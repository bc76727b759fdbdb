package common

const (
	ComponentIndexer       = "indexer"
	ComponentReorgDetector = "reorg-detector"
	ComponentStore         = "store"
	ComponentRPC           = "rpc"
	ComponentBroadcast     = "broadcast"
	ComponentStateTracker  = "state-tracker"
)

var AllComponents = map[string]struct{}{
	ComponentIndexer:       {},
	ComponentReorgDetector: {},
	ComponentStore:         {},
	ComponentRPC:           {},
	ComponentBroadcast:     {},
	ComponentStateTracker:  {},
}
