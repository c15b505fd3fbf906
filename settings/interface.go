package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

// NodeVariant selects how blocks are sourced and validated.
type NodeVariant string

const (
	// NodeVariantLocal validates everything locally and keeps block bodies in the local store.
	NodeVariantLocal NodeVariant = "local"
	// NodeVariantDaemon reads raw blocks from a reference daemon REST interface and trusts its validation.
	NodeVariantDaemon NodeVariant = "daemon"
	// NodeVariantRPC reads raw blocks from a JSON-RPC daemon and trusts its validation.
	NodeVariantRPC NodeVariant = "rpc"
)

type ConsensusSettings struct {
	TargetTimespan time.Duration
	TargetSpacing  time.Duration
	MinBits        uint32
	MaxBits        uint32
	GenesisBits    uint32
	Subsidy        uint64
}

// RetargetInterval is the number of blocks between difficulty recalculations.
func (c *ConsensusSettings) RetargetInterval() uint32 {
	if c.TargetSpacing <= 0 {
		return 1
	}

	interval := uint32(c.TargetTimespan / c.TargetSpacing)
	if interval == 0 {
		return 1
	}

	return interval
}

type NodeSettings struct {
	Variant       NodeVariant
	DaemonURL     *url.URL
	RPCURL        *url.URL
	RPCUser       string
	RPCPassword   string
	BlockCacheTTL time.Duration
	HTTPTimeout   time.Duration
}

type StoreSettings struct {
	URL *url.URL
}

type CoinbaseSettings struct {
	RewardAddress string
	ExtraDataSize int
}

type MiningSettings struct {
	Enabled        bool
	HashesPerCycle int
	ErrorBackoff   time.Duration
}

type MempoolSettings struct {
	MaxSize int
}

type Settings struct {
	ClientName     string
	DataFolder     string
	LogLevel       string
	Logger         string
	PrettyLogs     bool
	ProfilerAddr   string
	ChainCfgParams *chaincfg.Params
	Consensus      *ConsensusSettings
	Node           *NodeSettings
	Store          *StoreSettings
	Coinbase       *CoinbaseSettings
	Mining         *MiningSettings
	Mempool        *MempoolSettings
}
