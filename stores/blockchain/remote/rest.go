// Package remote reads blocks from a reference daemon, either through its REST interface or its
// JSON-RPC interface. Raw blocks are cached for a while since the chain asks for the same recent
// blocks repeatedly.
package remote

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
)

type blockCache = ttlcache.Cache[chainhash.Hash, []byte]

func newBlockCache(ttl time.Duration) *blockCache {
	cache := ttlcache.New[chainhash.Hash, []byte](
		ttlcache.WithTTL[chainhash.Hash, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[chainhash.Hash, []byte](),
	)

	go cache.Start()

	return cache
}

// RESTSource reads /rest/block/<hash>.bin and /rest/blockhashbyheight/<height>.bin.
type RESTSource struct {
	logger  ulogger.Logger
	baseURL *url.URL
	timeout time.Duration
	cache   *blockCache
}

func NewRESTSource(logger ulogger.Logger, baseURL *url.URL, cacheTTL, timeout time.Duration) *RESTSource {
	return &RESTSource{
		logger:  logger,
		baseURL: baseURL,
		timeout: timeout,
		cache:   newBlockCache(cacheTTL),
	}
}

func (r *RESTSource) GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error) {
	if item := r.cache.Get(*hash); item != nil {
		return model.NewBlockFromBytes(item.Value())
	}

	body, err := util.DoHTTPRequest(ctx, r.timeout, r.baseURL.JoinPath("rest", "block", hash.String()+".bin").String(), nil)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("daemon does not know block %s", hash)
		}

		return nil, err
	}

	block, err := parseBlock(hash, body)
	if err != nil {
		return nil, err
	}

	r.cache.Set(*hash, body, ttlcache.DefaultTTL)

	return block, nil
}

func (r *RESTSource) GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error) {
	body, err := util.DoHTTPRequest(ctx, r.timeout, r.baseURL.JoinPath("rest", "blockhashbyheight", strconv.FormatUint(uint64(height), 10)+".bin").String(), nil)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("daemon has no block at height %d", height)
		}

		return nil, err
	}

	hash, err := chainhash.NewHash(body)
	if err != nil {
		return nil, errors.NewServiceError("daemon returned a malformed hash for height %d", height, err)
	}

	return r.GetBlock(ctx, hash)
}

func (r *RESTSource) Stop() {
	r.cache.Stop()
}

func parseBlock(hash *chainhash.Hash, raw []byte) (*model.Block, error) {
	block, err := model.NewBlockFromBytes(raw)
	if err != nil {
		return nil, errors.NewServiceError("daemon returned an unparsable block %s", hash, err)
	}

	if !block.Hash().IsEqual(hash) {
		return nil, errors.NewServiceError("daemon returned block %s when asked for %s", block.Hash(), hash)
	}

	return block, nil
}
