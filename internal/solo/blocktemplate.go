// Package solo implements getblocktemplate/submitblock solo mining
// against a local node's RPC interface, sharing the Stratum path's
// hash kernel and byte-order helpers instead of reimplementing them.
package solo

import (
	"encoding/base64"

	"github.com/ybbus/jsonrpc"

	"github.com/pdqminer/btcminer/internal/minererr"
)

// Transaction is a single mempool transaction as returned inside a
// getblocktemplate response.
type Transaction struct {
	Hash    string `json:"hash"`
	TxID    string `json:"txid"`
	Weight  uint32 `json:"weight"`
	Fee     uint32 `json:"fee"`
	Data    string `json:"data"`
	SigOps  uint32 `json:"sigops"`
	Depends []uint `json:"depends"`
}

// BlockTemplate is the getblocktemplate response, plus the fields this
// miner fills in once it has solved it.
type BlockTemplate struct {
	PreviousBlockHash string        `json:"previousblockhash"`
	Target            string        `json:"target"`
	NonceRange        string        `json:"noncerange"`
	Bits              string        `json:"bits"`
	LongPollID        string        `json:"longpollid"`
	MinTime           uint32        `json:"mintime"`
	SigOpLimit        uint32        `json:"sigoplimit"`
	CurTime           uint32        `json:"curtime"`
	Height            uint32        `json:"height"`
	Version           uint32        `json:"version"`
	CoinBaseValue     uint64        `json:"coinbasevalue"`
	SizeLimit         uint32        `json:"sizelimit"`
	Transactions      []Transaction `json:"transactions"`
	Capabilities      []string      `json:"capabilities"`
	Mutable           []string      `json:"mutable"`
}

// RPCConfig names the node RPC endpoint and its basic-auth credentials.
type RPCConfig struct {
	URL      string
	User     string
	Password string
}

// Client talks to a Bitcoin/Litecoin-style node RPC.
type Client struct {
	rpc jsonrpc.RPCClient
}

// NewClient builds a Client for the given RPC endpoint.
func NewClient(cfg RPCConfig) *Client {
	rpc := jsonrpc.NewClientWithOpts(cfg.URL, &jsonrpc.RPCClientOpts{
		CustomHeaders: map[string]string{
			"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.User+":"+cfg.Password)),
		},
	})
	return &Client{rpc: rpc}
}

// GetBlockTemplate fetches a new block template to mine against.
func (c *Client) GetBlockTemplate() (BlockTemplate, error) {
	var bt BlockTemplate

	res, err := c.rpc.Call("getblocktemplate")
	if err != nil {
		return bt, minererr.Wrap(minererr.Transport, "getblocktemplate", err)
	}
	if res.Error != nil {
		return bt, minererr.Field(minererr.Protocol, "getblocktemplate", res.Error.Message)
	}
	if err := res.GetObject(&bt); err != nil {
		return bt, minererr.Wrap(minererr.Protocol, "getblocktemplate", err)
	}
	return bt, nil
}

// SubmitBlock submits a fully assembled, hex-encoded block.
func (c *Client) SubmitBlock(blockHex string) error {
	res, err := c.rpc.Call("submitblock", blockHex)
	if err != nil {
		return minererr.Wrap(minererr.Transport, "submitblock", err)
	}
	if res.Error != nil {
		return minererr.Field(minererr.Protocol, "submitblock", res.Error.Message)
	}
	if res.Result != nil {
		resStr, _ := res.GetString()
		return minererr.Field(minererr.Protocol, "submitblock", resStr)
	}
	return nil
}
