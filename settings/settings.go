package settings

import (
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

// DefaultMinBits is the smallest compact bits value accepted by the difficulty engine.
const DefaultMinBits uint32 = 0x03000000

// DefaultTargetTimespan is the span one retarget interval should take, two weeks.
const DefaultTargetTimespan = 14 * 24 * time.Hour

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	genesisBits := params.GenesisBlock.Header.Bits

	return &Settings{
		ClientName:     getString("clientName", "chainlite"),
		DataFolder:     getString("dataFolder", "data"),
		LogLevel:       getString("logLevel", "INFO"),
		Logger:         getString("logger", "zerolog"),
		PrettyLogs:     getBool("PRETTY_LOGS", true),
		ProfilerAddr:   getString("profilerAddr", ""),
		ChainCfgParams: params,
		Consensus: &ConsensusSettings{
			TargetTimespan: getDuration("consensus_targetTimespan", DefaultTargetTimespan),
			TargetSpacing:  getDuration("consensus_targetSpacing", params.TargetTimePerBlock),
			MinBits:        getUint32("consensus_minBits", DefaultMinBits),
			MaxBits:        getUint32("consensus_maxBits", params.PowLimitBits),
			GenesisBits:    getUint32("consensus_genesisBits", genesisBits),
			Subsidy:        getUint64("consensus_subsidy", 50*1e8),
		},
		Node: &NodeSettings{
			Variant:       NodeVariant(getString("node_variant", string(NodeVariantLocal))),
			DaemonURL:     getURL("node_daemonURL", "http://localhost:8332"),
			RPCURL:        getURL("node_rpcURL", "http://localhost:8332"),
			RPCUser:       getString("node_rpcUser", ""),
			RPCPassword:   getString("node_rpcPassword", ""),
			BlockCacheTTL: getDuration("node_blockCacheTTL", 10*time.Minute),
			HTTPTimeout:   getDuration("node_httpTimeout", 30*time.Second),
		},
		Store: &StoreSettings{
			URL: getURL("store_url", "leveldb:///data/chainlite"),
		},
		Coinbase: &CoinbaseSettings{
			RewardAddress: getString("coinbase_rewardAddress", ""),
			ExtraDataSize: getInt("coinbase_extraDataSize", 40),
		},
		Mining: &MiningSettings{
			Enabled:        getBool("mining_enabled", false),
			HashesPerCycle: getInt("mining_hashesPerCycle", 100),
			ErrorBackoff:   getDuration("mining_errorBackoff", time.Second),
		},
		Mempool: &MempoolSettings{
			MaxSize: getInt("mempool_maxSize", 0),
		},
	}
}
