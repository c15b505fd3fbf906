// Package blockchain owns the chain tip. It computes the required difficulty, accepts blocks
// through a single writer and switches to a heavier fork when one appears.
package blockchain

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/services/blockchain/work"
	"github.com/bsv-blockchain/chainlite/settings"
	blockchainstore "github.com/bsv-blockchain/chainlite/stores/blockchain"
	"github.com/bsv-blockchain/chainlite/stores/kv"
	"github.com/bsv-blockchain/chainlite/stores/utxo"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/looplab/fsm"
)

// BlockValidator judges a block against its parent before it is connected.
type BlockValidator interface {
	ValidateBlock(ctx context.Context, block *model.Block, prev *model.Block) error
}

// MempoolReconciler drops pooled transactions made invalid by a connected block.
type MempoolReconciler interface {
	Reconcile(block *model.Block) int
}

type Option func(*Chain)

// WithGenesisBlock replaces the genesis block of the network parameters. It is only used when
// the store is empty.
func WithGenesisBlock(block *model.Block) Option {
	return func(c *Chain) {
		c.genesisBlock = block
	}
}

const subscriberBufferSize = 16

type subscriber struct {
	source string
	ch     chan *model.Notification
}

// Chain is the single writer over the tip. Every block it connects is committed together with
// its index entries in one batch, so a failed commit leaves the chain as it was.
type Chain struct {
	logger             ulogger.Logger
	settings           *settings.Settings
	store              *blockchainstore.Store
	kvStore            kv.Store
	difficulty         *Difficulty
	validator          BlockValidator
	mempool            MempoolReconciler
	finiteStateMachine *fsm.FSM
	genesisBlock       *model.Block

	// mu serializes AddBlock, Start and Stop
	mu sync.Mutex

	tipMu    sync.RWMutex
	best     *model.Block
	bestMeta *blockchainstore.BlockMeta
	genesis  *model.Block

	subscribersMu sync.Mutex
	subscribers   []*subscriber
}

func NewChain(logger ulogger.Logger, tSettings *settings.Settings, store *blockchainstore.Store, difficulty *Difficulty,
	validator BlockValidator, mempool MempoolReconciler, opts ...Option) *Chain {
	initPrometheusMetrics()

	c := &Chain{
		logger:     logger,
		settings:   tSettings,
		store:      store,
		kvStore:    store.KVStore(),
		difficulty: difficulty,
		validator:  validator,
		mempool:    mempool,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.finiteStateMachine = c.NewFiniteStateMachine()

	return c
}

// Start loads the tip from the store, or connects the genesis block when the store is empty.
func (c *Chain) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tipHash, err := c.store.GetTip(ctx)

	switch {
	case err == nil:
		if err = c.loadTip(ctx, tipHash); err != nil {
			return err
		}
	case errors.Is(err, errors.ErrNotFound):
		if err = c.connectGenesis(ctx); err != nil {
			return err
		}
	default:
		return errors.NewStorageError("[Start] failed to read tip", err)
	}

	genesis, err := c.store.GetBlockAtHeight(ctx, 0)
	if err != nil {
		return errors.NewStorageError("[Start] failed to read genesis block", err)
	}

	c.tipMu.Lock()
	c.genesis = genesis
	c.tipMu.Unlock()

	if err = c.finiteStateMachine.Event(ctx, FSMEventRun); err != nil {
		return errors.NewProcessingError("[Start] chain cannot start", err)
	}

	best, meta := c.tip()
	c.logger.Infof("[Start] chain tip %s at height %d", best.Hash(), meta.Height)

	return nil
}

// Stop refuses further blocks. Subscriptions end with their contexts.
func (c *Chain) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.finiteStateMachine.Is(FSMStateStopped) {
		return nil
	}

	return c.finiteStateMachine.Event(ctx, FSMEventStop)
}

func (c *Chain) loadTip(ctx context.Context, hash *chainhash.Hash) error {
	block, err := c.store.GetBlock(ctx, hash)
	if err != nil {
		return errors.NewStorageError("[Start] failed to read tip block %s", hash, err)
	}

	meta, err := c.store.GetBlockMeta(ctx, hash)
	if err != nil {
		return errors.NewStorageError("[Start] failed to read tip meta %s", hash, err)
	}

	c.setTip(block, meta)

	return nil
}

func (c *Chain) connectGenesis(ctx context.Context) error {
	genesis := c.genesisBlock

	if genesis == nil {
		var err error

		if genesis, err = BuildGenesisBlock(c.settings, nil); err != nil {
			return err
		}
	}

	if err := c.validator.ValidateBlock(ctx, genesis, nil); err != nil {
		return errors.NewConfigurationError("[Start] genesis block %s is invalid", genesis.Hash(), err)
	}

	meta := &blockchainstore.BlockMeta{
		Hash:      genesis.Hash(),
		Header:    genesis.Header,
		Height:    0,
		ChainWork: work.CalculateWork(nil, genesis.Header.Bits),
	}

	if err := c.connect(ctx, genesis, meta); err != nil {
		return err
	}

	c.logger.Infof("[Start] created genesis block %s", genesis.Hash())

	return nil
}

// BestBlock returns the tip, with its height set.
func (c *Chain) BestBlock() *model.Block {
	best, _ := c.tip()

	return best
}

// BestBlockMeta returns the height and chain work of the tip.
func (c *Chain) BestBlockMeta() *blockchainstore.BlockMeta {
	_, meta := c.tip()

	return meta
}

func (c *Chain) GenesisBlock() *model.Block {
	c.tipMu.RLock()
	defer c.tipMu.RUnlock()

	return c.genesis
}

func (c *Chain) GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error) {
	return c.store.GetBlock(ctx, hash)
}

// GetBlockAtHeight returns the main chain block at height.
func (c *Chain) GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error) {
	return c.store.GetBlockAtHeight(ctx, height)
}

// NextWorkRequired returns the bits a block on top of last must carry.
func (c *Chain) NextWorkRequired(ctx context.Context, last *model.Block) (uint32, error) {
	return c.difficulty.NextWorkRequired(ctx, last)
}

func (c *Chain) tip() (*model.Block, *blockchainstore.BlockMeta) {
	c.tipMu.RLock()
	defer c.tipMu.RUnlock()

	return c.best, c.bestMeta
}

func (c *Chain) setTip(block *model.Block, meta *blockchainstore.BlockMeta) {
	c.tipMu.Lock()
	c.best = block
	c.bestMeta = meta
	c.tipMu.Unlock()

	prometheusChainHeight.Set(float64(meta.Height))
}

// AddBlock accepts a block. A block on top of the tip is validated and connected. Any other
// block with a known parent is stored as a side chain block, and the chain switches to it when
// its chain work exceeds the tip's.
func (c *Chain) AddBlock(ctx context.Context, block *model.Block) (err error) {
	start := time.Now()

	defer func() {
		prometheusChainAddBlock.Observe(time.Since(start).Seconds())

		if err != nil {
			prometheusChainBlocksRejected.Inc()
		}
	}()

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.finiteStateMachine.Is(FSMStateRunning) {
		return errors.NewProcessingError("[AddBlock] chain is %s", c.finiteStateMachine.Current())
	}

	exists, err := c.store.GetBlockExists(ctx, block.Hash())
	if err != nil {
		return errors.NewStorageError("[AddBlock] failed to check block %s", block.Hash(), err)
	}

	if exists {
		return errors.NewBlockExistsError("[AddBlock] block %s already exists", block.Hash())
	}

	best, bestMeta := c.tip()

	if block.Header.HashPrevBlock.IsEqual(bestMeta.Hash) {
		if err = c.validator.ValidateBlock(ctx, block, best); err != nil {
			c.logger.Warnf("[AddBlock] block %s rejected: %v", block.Hash(), err)
			return err
		}

		meta := &blockchainstore.BlockMeta{
			Hash:      block.Hash(),
			Header:    block.Header,
			Height:    bestMeta.Height + 1,
			ChainWork: work.CalculateWork(bestMeta.ChainWork, block.Header.Bits),
		}

		if err = c.connect(ctx, block, meta); err != nil {
			return err
		}

		c.logger.Infof("[AddBlock] block %s connected at height %d", meta.Hash, meta.Height)
		c.notify(&model.Notification{Type: model.NotificationTypeBlock, Hash: meta.Hash, Height: meta.Height})

		return nil
	}

	prevMeta, err := c.store.GetBlockMeta(ctx, block.Header.HashPrevBlock)
	if err != nil {
		if errors.Is(err, errors.ErrBlockNotFound) {
			return errors.NewPrevBlockNotFoundError("[AddBlock] previous block %s of %s not found", block.Header.HashPrevBlock, block.Hash())
		}

		return errors.NewStorageError("[AddBlock] failed to read previous block %s", block.Header.HashPrevBlock, err)
	}

	return c.addSideBlock(ctx, block, prevMeta)
}

// addSideBlock stores a block off the main chain after checking its header and merkle root.
// Its transactions are only validated if a reorganization connects it.
func (c *Chain) addSideBlock(ctx context.Context, block *model.Block, prevMeta *blockchainstore.BlockMeta) error {
	if err := c.difficulty.CheckProofOfWork(block); err != nil {
		return err
	}

	if err := block.CheckMerkleRoot(); err != nil {
		return err
	}

	meta := &blockchainstore.BlockMeta{
		Hash:      block.Hash(),
		Header:    block.Header,
		Height:    prevMeta.Height + 1,
		ChainWork: work.CalculateWork(prevMeta.ChainWork, block.Header.Bits),
	}

	if err := c.kvStore.ApplyBatch(ctx, c.store.StoreBlockOperations(block, meta)); err != nil {
		return errors.NewStorageError("[AddBlock] failed to store side block %s", meta.Hash, err)
	}

	prometheusChainSideBlocks.Inc()

	_, bestMeta := c.tip()

	if meta.ChainWork.Cmp(bestMeta.ChainWork) <= 0 {
		c.logger.Infof("[AddBlock] stored side block %s at height %d", meta.Hash, meta.Height)
		return nil
	}

	return c.reorganize(ctx, meta)
}

// connect commits block with its index entries and moves the tip onto it. The block must
// already be validated against the current tip.
func (c *Chain) connect(ctx context.Context, block *model.Block, meta *blockchainstore.BlockMeta) error {
	// index operations need a height, but block only gets one after the commit
	staged := model.NewBlock(block.Header, block.Transactions)
	if err := staged.SetHeight(meta.Height); err != nil {
		return err
	}

	indexOps, err := utxo.BlockOperations(staged, true, c.settings.ChainCfgParams)
	if err != nil {
		return err
	}

	txOps, err := utxo.TransactionOperations(staged, true)
	if err != nil {
		return err
	}

	ops := c.store.StoreBlockOperations(block, meta)
	ops = append(ops, indexOps...)
	ops = append(ops, txOps...)
	ops = append(ops, blockchainstore.MainChainOperations(meta.Hash, meta.Height, true)...)
	ops = append(ops, blockchainstore.TipOperation(meta.Hash))

	if err = c.kvStore.ApplyBatch(ctx, ops); err != nil {
		return errors.NewStorageError("[connect] failed to commit block %s", meta.Hash, err)
	}

	prometheusChainBatchSize.Observe(float64(len(ops)))
	prometheusChainBlocksAccepted.Inc()

	if _, ok := block.Height(); !ok {
		if err = block.SetHeight(meta.Height); err != nil {
			return err
		}
	}

	c.setTip(block, meta)

	if c.mempool != nil {
		c.mempool.Reconcile(block)
	}

	return nil
}

// disconnect removes the index entries of the tip block and moves the tip to its parent. The
// block itself stays stored.
func (c *Chain) disconnect(ctx context.Context, block *model.Block) error {
	height, ok := block.Height()
	if !ok {
		return errors.NewProcessingError("[disconnect] block %s has no height", block.Hash())
	}

	prev, err := c.store.GetBlock(ctx, block.Header.HashPrevBlock)
	if err != nil {
		return errors.NewStorageError("[disconnect] failed to read block %s", block.Header.HashPrevBlock, err)
	}

	prevMeta, err := c.store.GetBlockMeta(ctx, block.Header.HashPrevBlock)
	if err != nil {
		return errors.NewStorageError("[disconnect] failed to read meta of %s", block.Header.HashPrevBlock, err)
	}

	indexOps, err := utxo.BlockOperations(block, false, c.settings.ChainCfgParams)
	if err != nil {
		return err
	}

	txOps, err := utxo.TransactionOperations(block, false)
	if err != nil {
		return err
	}

	ops := append(indexOps, txOps...)
	ops = append(ops, blockchainstore.MainChainOperations(block.Hash(), height, false)...)
	ops = append(ops, blockchainstore.TipOperation(prevMeta.Hash))

	if err = c.kvStore.ApplyBatch(ctx, ops); err != nil {
		return errors.NewStorageError("[disconnect] failed to commit undo of block %s", block.Hash(), err)
	}

	prometheusChainBatchSize.Observe(float64(len(ops)))

	c.setTip(prev, prevMeta)

	return nil
}

// reorganize switches the main chain to the branch ending in newTip. Old blocks are undone down
// to the fork point, then the branch is validated and connected block by block. If a branch
// block is invalid the old chain is restored and the invalid block and its descendants on the
// branch are forgotten.
func (c *Chain) reorganize(ctx context.Context, newTip *blockchainstore.BlockMeta) error {
	branch, fork, err := c.findFork(ctx, newTip)
	if err != nil {
		return err
	}

	_, oldTip := c.tip()

	c.logger.Infof("[reorganize] switching from %s (height %d) to %s (height %d), fork at height %d",
		oldTip.Hash, oldTip.Height, newTip.Hash, newTip.Height, fork.Height)

	if err = c.finiteStateMachine.Event(ctx, FSMEventReorg); err != nil {
		return errors.NewProcessingError("[reorganize] cannot reorganize", err)
	}

	defer func() {
		if fsmErr := c.finiteStateMachine.Event(ctx, FSMEventReorgComplete); fsmErr != nil {
			c.logger.Errorf("[reorganize] failed to leave reorganizing state: %v", fsmErr)
		}
	}()

	// descending
	undone := make([]*model.Block, 0, oldTip.Height-fork.Height)

	for height := oldTip.Height; height > fork.Height; height-- {
		block, err := c.store.GetBlockAtHeight(ctx, height)
		if err == nil {
			err = c.disconnect(ctx, block)
		}

		if err != nil {
			return errors.Join(err, c.restore(ctx, nil, undone))
		}

		undone = append(undone, block)
	}

	// ascending
	applied := make([]*model.Block, 0, len(branch))

	for i, meta := range branch {
		block, err := c.store.GetBlock(ctx, meta.Hash)
		if err != nil {
			return errors.Join(err, c.restore(ctx, applied, undone))
		}

		best, _ := c.tip()

		if err = c.validator.ValidateBlock(ctx, block, best); err != nil {
			c.logger.Warnf("[reorganize] block %s rejected, keeping the current chain: %v", meta.Hash, err)

			return errors.Join(err, c.restore(ctx, applied, undone), c.forget(ctx, branch[i:]))
		}

		if err = c.connect(ctx, block, meta); err != nil {
			return errors.Join(err, c.restore(ctx, applied, undone))
		}

		applied = append(applied, block)
	}

	prometheusChainReorgs.Inc()
	prometheusChainReorgDepth.Observe(float64(len(undone)))

	c.logger.Infof("[reorganize] best chain is now %s at height %d, %d blocks undone", newTip.Hash, newTip.Height, len(undone))
	c.notify(&model.Notification{Type: model.NotificationTypeReorg, Hash: newTip.Hash, Height: newTip.Height})

	return nil
}

// findFork walks back from tip until it meets the main chain. It returns the branch blocks in
// ascending height order and the main chain block they fork from.
func (c *Chain) findFork(ctx context.Context, tip *blockchainstore.BlockMeta) ([]*blockchainstore.BlockMeta, *blockchainstore.BlockMeta, error) {
	var branch []*blockchainstore.BlockMeta

	meta := tip

	for {
		onMainChain, err := c.isOnMainChain(ctx, meta)
		if err != nil {
			return nil, nil, err
		}

		if onMainChain {
			break
		}

		branch = append(branch, meta)

		if meta, err = c.store.GetBlockMeta(ctx, meta.Header.HashPrevBlock); err != nil {
			return nil, nil, errors.NewStorageError("[findFork] broken side chain at %s", branch[len(branch)-1].Hash, err)
		}
	}

	for i, j := 0, len(branch)-1; i < j; i, j = i+1, j-1 {
		branch[i], branch[j] = branch[j], branch[i]
	}

	return branch, meta, nil
}

func (c *Chain) isOnMainChain(ctx context.Context, meta *blockchainstore.BlockMeta) (bool, error) {
	hash, err := c.store.GetHashAtHeight(ctx, meta.Height)
	if err != nil {
		if errors.Is(err, errors.ErrBlockNotFound) {
			return false, nil
		}

		return false, err
	}

	return hash.IsEqual(meta.Hash), nil
}

// restore undoes the applied branch blocks and reconnects the undone old blocks.
func (c *Chain) restore(ctx context.Context, applied []*model.Block, undone []*model.Block) error {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := c.disconnect(ctx, applied[i]); err != nil {
			c.logger.Errorf("[restore] failed to undo block %s: %v", applied[i].Hash(), err)
			return err
		}
	}

	for i := len(undone) - 1; i >= 0; i-- {
		meta, err := c.store.GetBlockMeta(ctx, undone[i].Hash())
		if err == nil {
			err = c.connect(ctx, undone[i], meta)
		}

		if err != nil {
			c.logger.Errorf("[restore] failed to reconnect block %s: %v", undone[i].Hash(), err)
			return err
		}
	}

	return nil
}

func (c *Chain) forget(ctx context.Context, metas []*blockchainstore.BlockMeta) error {
	ops := make([]kv.Operation, 0, len(metas)*2)

	for _, meta := range metas {
		ops = append(ops, c.store.DeleteBlockOperations(meta.Hash)...)
	}

	if err := c.kvStore.ApplyBatch(ctx, ops); err != nil {
		return errors.NewStorageError("[forget] failed to delete invalid blocks", err)
	}

	return nil
}

// ChainWork returns the cumulative work of the best chain.
func (c *Chain) ChainWork() *big.Int {
	_, meta := c.tip()

	return new(big.Int).Set(meta.ChainWork)
}

// Subscribe returns a channel of tip notifications. The channel is closed when ctx is done.
// Slow subscribers miss notifications rather than block the chain.
func (c *Chain) Subscribe(ctx context.Context, source string) <-chan *model.Notification {
	sub := &subscriber{
		source: source,
		ch:     make(chan *model.Notification, subscriberBufferSize),
	}

	c.subscribersMu.Lock()
	c.subscribers = append(c.subscribers, sub)
	c.subscribersMu.Unlock()

	go func() {
		<-ctx.Done()

		c.subscribersMu.Lock()
		defer c.subscribersMu.Unlock()

		for i, s := range c.subscribers {
			if s == sub {
				c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
				break
			}
		}

		close(sub.ch)
	}()

	return sub.ch
}

func (c *Chain) notify(notification *model.Notification) {
	c.subscribersMu.Lock()
	defer c.subscribersMu.Unlock()

	for _, sub := range c.subscribers {
		select {
		case sub.ch <- notification:
		default:
			c.logger.Warnf("[notify] subscriber %s is not keeping up, dropped %s notification", sub.source, notification.Type)
		}
	}
}
