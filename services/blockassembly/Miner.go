package blockassembly

import (
	"context"
	"runtime"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/services/blockassembly/mining"
	"github.com/bsv-blockchain/chainlite/settings"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/clock"
	"go.uber.org/atomic"
)

const candidateVersion uint32 = 1

// ChainClient is the part of the chain the miner builds on and submits to.
type ChainClient interface {
	BestBlock() *model.Block
	NextWorkRequired(ctx context.Context, last *model.Block) (uint32, error)
	AddBlock(ctx context.Context, block *model.Block) error
	Subscribe(ctx context.Context, source string) <-chan *model.Notification
}

// TxSource supplies the transactions to include, parents before children.
type TxSource interface {
	Transactions() []*bt.Tx
}

// Miner repeatedly assembles a candidate on the current tip and searches its nonce space in
// bounded bursts. Between bursts it yields and gives up the candidate when the tip moved or a
// stop was requested.
type Miner struct {
	logger   ulogger.Logger
	settings *settings.Settings
	chain    ChainClient
	txSource TxSource
	coinbase *CoinbaseBuilder
	clock    clock.Clock

	running     atomic.Bool
	stopping    atomic.Bool
	notifiedTip atomic.Pointer[chainhash.Hash]
}

type MinerOption func(*Miner)

// WithClock sets the clock candidate timestamps and error backoffs are read from.
func WithClock(c clock.Clock) MinerOption {
	return func(m *Miner) {
		m.clock = c
	}
}

func NewMiner(logger ulogger.Logger, tSettings *settings.Settings, chain ChainClient, txSource TxSource, opts ...MinerOption) *Miner {
	initPrometheusMetrics()

	m := &Miner{
		logger:   logger,
		settings: tSettings,
		chain:    chain,
		txSource: txSource,
		coinbase: NewCoinbaseBuilder(logger, tSettings),
		clock:    clock.NewDefaultClock(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start mines until ctx is done or Stop is called. Refused blocks and failed cycles are logged
// and the loop moves on to the next candidate.
func (m *Miner) Start(ctx context.Context) error {
	if m.settings.Coinbase == nil || m.settings.Coinbase.RewardAddress == "" {
		m.logger.Warnf("[Miner] no coinbase reward address configured, mining disabled")
		return nil
	}

	if m.running.Load() {
		return errors.NewProcessingError("miner is already running")
	}

	m.stopping.Store(false)

	if !m.running.CompareAndSwap(false, true) {
		return errors.NewProcessingError("miner is already running")
	}
	defer m.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	notifications := m.chain.Subscribe(ctx, "miner")

	go func() {
		for notification := range notifications {
			m.notifiedTip.Store(notification.Hash)
		}
	}()

	m.logger.Infof("[Miner] started, %d hashes per cycle", m.hashesPerCycle())

	for !m.stopping.Load() {
		select {
		case <-ctx.Done():
			m.logger.Infof("[Miner] stopping as ctx is done")
			return nil
		default:
		}

		candidate, err := m.solve(ctx)
		if err != nil {
			m.logger.Errorf("[Miner] mining cycle failed: %v", err)

			select {
			case <-ctx.Done():
				return nil
			case <-m.clock.TickAfter(m.settings.Mining.ErrorBackoff):
			}

			continue
		}

		if candidate == nil {
			continue
		}

		if err = m.submit(ctx, candidate); err != nil {
			m.logger.Warnf("[Miner] mined block %s was refused: %v", candidate.Hash(), err)
		}
	}

	m.logger.Infof("[Miner] stopped")

	return nil
}

// Stop asks the loop to give up at its next yield point. A block that is already being submitted
// is still submitted.
func (m *Miner) Stop() {
	m.stopping.Store(true)
}

func (m *Miner) IsRunning() bool {
	return m.running.Load()
}

// MineBlock runs one cycle. It returns the accepted block, or nil without an error when the
// candidate was abandoned.
func (m *Miner) MineBlock(ctx context.Context) (*model.Block, error) {
	candidate, err := m.solve(ctx)
	if err != nil || candidate == nil {
		return nil, err
	}

	if err = m.submit(ctx, candidate); err != nil {
		return nil, err
	}

	return candidate, nil
}

func (m *Miner) solve(ctx context.Context) (*model.Block, error) {
	tip := m.chain.BestBlock()
	if tip == nil {
		return nil, errors.NewProcessingError("chain has no tip yet")
	}

	candidate, err := m.buildCandidate(ctx, tip)
	if err != nil {
		return nil, err
	}

	candidateID := uuid.New()
	hashes := m.hashesPerCycle()

	m.logger.Debugf("[Miner][%s] mining %d transactions on %s with bits %s", candidateID, len(candidate.Transactions), tip.Hash(), candidate.Header.Bits)

	for {
		solved, err := mining.SolveBurst(candidate, hashes)
		prometheusMinerHashes.Add(float64(hashes))

		if err != nil {
			// a new cycle gets a new coinbase and so a fresh nonce space
			m.logger.Debugf("[Miner][%s] %v", candidateID, err)
			prometheusMinerCandidatesAbandoned.Inc()

			return nil, nil
		}

		if solved {
			break
		}

		runtime.Gosched()

		if abandon, reason := m.shouldAbandon(ctx, tip.Hash()); abandon {
			m.logger.Debugf("[Miner][%s] abandoning candidate: %s", candidateID, reason)
			prometheusMinerCandidatesAbandoned.Inc()

			return nil, nil
		}
	}

	prometheusMinerBlocksFound.Inc()

	m.logger.Infof("[Miner][%s] found block %s with nonce %d", candidateID, candidate.Hash(), candidate.Header.Nonce)

	return candidate, nil
}

func (m *Miner) submit(ctx context.Context, block *model.Block) error {
	if err := m.chain.AddBlock(ctx, block); err != nil {
		prometheusMinerSubmitErrors.Inc()
		return err
	}

	height, _ := block.Height()
	m.logger.Infof("[Miner] block %s accepted at height %d", block.Hash(), height)

	return nil
}

func (m *Miner) shouldAbandon(ctx context.Context, tipHash *chainhash.Hash) (bool, string) {
	select {
	case <-ctx.Done():
		return true, "context done"
	default:
	}

	if m.stopping.Load() {
		return true, "stop requested"
	}

	if notified := m.notifiedTip.Load(); notified != nil && !notified.IsEqual(tipHash) {
		return true, "tip changed"
	}

	if best := m.chain.BestBlock(); best == nil || !best.Hash().IsEqual(tipHash) {
		return true, "tip changed"
	}

	return false, ""
}

func (m *Miner) buildCandidate(ctx context.Context, tip *model.Block) (*model.Block, error) {
	bits, err := m.chain.NextWorkRequired(ctx, tip)
	if err != nil {
		return nil, errors.NewProcessingError("failed to get next work required on %s", tip.Hash(), err)
	}

	pooled := m.txSource.Transactions()

	coinbaseTx, err := m.coinbase.BuildCoinbase(pooled, nil)
	if err != nil {
		return nil, err
	}

	txs := make([]*bt.Tx, 0, len(pooled)+1)
	txs = append(txs, coinbaseTx)
	txs = append(txs, pooled...)

	prometheusMinerCandidateTxs.Observe(float64(len(txs)))

	timestamp := uint32(m.clock.Now().Unix())
	if timestamp <= tip.Header.Timestamp {
		timestamp = tip.Header.Timestamp + 1
	}

	header := &model.BlockHeader{
		Version:        candidateVersion,
		HashPrevBlock:  tip.Hash(),
		HashMerkleRoot: model.CalculateMerkleRoot(txs),
		Timestamp:      timestamp,
		Bits:           model.NBit(bits),
		Nonce:          0,
	}

	return model.NewBlock(header, txs), nil
}

func (m *Miner) hashesPerCycle() int {
	if m.settings.Mining == nil || m.settings.Mining.HashesPerCycle <= 0 {
		return 100
	}

	return m.settings.Mining.HashesPerCycle
}
