package remote

import (
	"context"
	"net/url"
	"time"

	"github.com/bsv-blockchain/chainlite/errors"
	"github.com/bsv-blockchain/chainlite/model"
	"github.com/bsv-blockchain/chainlite/ulogger"
	"github.com/bsv-blockchain/chainlite/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/jellydator/ttlcache/v3"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	rpcInvalidAddressOrKey = -5
	rpcInvalidParameter    = -8
)

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result jsoniter.RawMessage `json:"result"`
	Error  *rpcError           `json:"error"`
	ID     string              `json:"id"`
}

// RPCSource reads blocks with getblockhash and getblock <hash> false.
type RPCSource struct {
	logger   ulogger.Logger
	url      *url.URL
	user     string
	password string
	timeout  time.Duration
	cache    *blockCache
}

// NewRPCSource creates a JSON-RPC block source. Credentials in rpcURL are used when user is empty.
func NewRPCSource(logger ulogger.Logger, rpcURL *url.URL, user, password string, cacheTTL, timeout time.Duration) *RPCSource {
	if user == "" && rpcURL.User != nil {
		user = rpcURL.User.Username()
		password, _ = rpcURL.User.Password()
	}

	endpoint := *rpcURL
	endpoint.User = nil

	return &RPCSource{
		logger:   logger,
		url:      &endpoint,
		user:     user,
		password: password,
		timeout:  timeout,
		cache:    newBlockCache(cacheTTL),
	}
}

func (r *RPCSource) call(ctx context.Context, method string, params ...interface{}) (jsoniter.RawMessage, error) {
	if params == nil {
		params = []interface{}{}
	}

	requestBody, err := json.Marshal(rpcRequest{JSONRPC: "1.0", ID: "chainlite", Method: method, Params: params})
	if err != nil {
		return nil, errors.NewProcessingError("failed to encode %s request", method, err)
	}

	body, httpErr := util.DoHTTPRequest(ctx, r.timeout, r.url.String(), requestBody, util.WithBasicAuth(r.user, r.password))
	if httpErr != nil && len(body) == 0 {
		return nil, httpErr
	}

	var resp rpcResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		if httpErr != nil {
			return nil, httpErr
		}

		return nil, errors.NewServiceError("[%s] unparsable rpc response", method, err)
	}

	if resp.Error != nil {
		switch resp.Error.Code {
		case rpcInvalidAddressOrKey, rpcInvalidParameter:
			return nil, errors.NewNotFoundError("[%s] %s", method, resp.Error.Message)
		}

		return nil, errors.NewServiceError("[%s] rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}

	if httpErr != nil {
		return nil, httpErr
	}

	return resp.Result, nil
}

func (r *RPCSource) GetBlock(ctx context.Context, hash *chainhash.Hash) (*model.Block, error) {
	if item := r.cache.Get(*hash); item != nil {
		return model.NewBlockFromBytes(item.Value())
	}

	result, err := r.call(ctx, "getblock", hash.String(), false)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("daemon does not know block %s", hash, err)
		}

		return nil, err
	}

	var blockHex string
	if err = json.Unmarshal(result, &blockHex); err != nil {
		return nil, errors.NewServiceError("getblock returned %s instead of a hex string", string(result), err)
	}

	block, err := model.NewBlockFromString(blockHex)
	if err != nil {
		return nil, errors.NewServiceError("daemon returned an unparsable block %s", hash, err)
	}

	if !block.Hash().IsEqual(hash) {
		return nil, errors.NewServiceError("daemon returned block %s when asked for %s", block.Hash(), hash)
	}

	r.cache.Set(*hash, block.Bytes(), ttlcache.DefaultTTL)

	return block, nil
}

func (r *RPCSource) GetBlockAtHeight(ctx context.Context, height uint32) (*model.Block, error) {
	result, err := r.call(ctx, "getblockhash", height)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NewBlockNotFoundError("daemon has no block at height %d", height, err)
		}

		return nil, err
	}

	var hashStr string
	if err = json.Unmarshal(result, &hashStr); err != nil {
		return nil, errors.NewServiceError("getblockhash returned %s", string(result), err)
	}

	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, errors.NewServiceError("getblockhash returned a malformed hash %q", hashStr, err)
	}

	return r.GetBlock(ctx, hash)
}

func (r *RPCSource) Stop() {
	r.cache.Stop()
}
