// Package stratum implements the Stratum V1 wire protocol: framing,
// the request/notify/response shapes a pool actually sends, and the
// session state machine that drives a JobDispatcher from them.
package stratum

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pdqminer/btcminer/internal/bitutil"
	"github.com/pdqminer/btcminer/internal/job"
	"github.com/pdqminer/btcminer/internal/minererr"
)

const (
	MethodSubscribe     = "mining.subscribe"
	MethodAuthorize     = "mining.authorize"
	MethodNotify        = "mining.notify"
	MethodSetDifficulty = "mining.set_difficulty"
	MethodSubmit        = "mining.submit"
)

// maxLineSize bounds a single JSON-RPC line so a pool (or a man in the
// middle) can't exhaust memory by never sending a newline.
const maxLineSize = 16 * 1024

// Request is an outgoing (or incoming, for notifications) JSON-RPC
// frame. ID is nil for notifications.
type Request struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response is an incoming JSON-RPC reply to a request this client
// sent.
type Response struct {
	ID     interface{}  `json:"id"`
	Result interface{}  `json:"result"`
	Error  *RPCError    `json:"error"`
}

// RPCError is the Stratum error-object shape.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Codec reads and writes newline-delimited Stratum JSON frames over an
// arbitrary stream.
type Codec struct {
	w       io.Writer
	scanner *bufio.Scanner
}

// NewCodec wraps an already-connected stream.
func NewCodec(rw io.ReadWriter) *Codec {
	scanner := bufio.NewScanner(rw)
	scanner.Buffer(make([]byte, 4096), maxLineSize)
	return &Codec{w: rw, scanner: scanner}
}

// ReadLine blocks until a complete newline-delimited frame is
// available and returns its raw bytes. Callers distinguish a request
// from a response by attempting both unmarshals, per Stratum's
// untyped-by-direction framing.
func (c *Codec) ReadLine() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, minererr.Wrap(minererr.Transport, "read", err)
		}
		return nil, minererr.New(minererr.Transport, "connection closed")
	}
	line := make([]byte, len(c.scanner.Bytes()))
	copy(line, c.scanner.Bytes())
	return line, nil
}

// DecodeLine attempts to unmarshal a raw frame as a Request first (it
// carries a non-empty Method for pool-to-client notifications and
// calls), falling back to a Response (a reply keyed by ID). A line
// that decodes as neither is a Protocol error; the caller discards it
// and keeps reading.
func DecodeLine(line []byte) (*Request, *Response, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err == nil && req.Method != "" {
		return &req, nil, nil
	}

	var res Response
	if err := json.Unmarshal(line, &res); err != nil {
		return nil, nil, minererr.Wrap(minererr.Protocol, "line", err)
	}
	return nil, &res, nil
}

// WriteRequest emits a single newline-terminated request frame.
func (c *Codec) WriteRequest(req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return minererr.Wrap(minererr.InvalidParam, "request", err)
	}
	payload = append(payload, '\n')

	written := 0
	for written != len(payload) {
		n, err := c.w.Write(payload[written:])
		if err != nil {
			return minererr.Wrap(minererr.Transport, "write", err)
		}
		written += n
	}
	return nil
}

// SubscribeRequest builds the id=1 mining.subscribe call.
func SubscribeRequest(userAgent string) Request {
	return Request{ID: 1, Method: MethodSubscribe, Params: []interface{}{userAgent}}
}

// AuthorizeRequest builds the id=2 mining.authorize call.
func AuthorizeRequest(worker, password string) Request {
	return Request{ID: 2, Method: MethodAuthorize, Params: []interface{}{worker, password}}
}

// SubmitRequest builds a mining.submit call, ids 100+n per submission.
func SubmitRequest(id int, worker, jobID string, extranonce2 uint64, extranonce2Size int, ntime, nonce uint32) Request {
	return Request{
		ID:     id,
		Method: MethodSubmit,
		Params: []interface{}{
			worker,
			jobID,
			bitutil.EncodeHex(bitutil.BEBytes(extranonce2, extranonce2Size)),
			bitutil.EncodeHex(bitutil.BEBytes(uint64(ntime), 4)),
			bitutil.EncodeHex(bitutil.BEBytes(uint64(nonce), 4)),
		},
	}
}

// SubscribeResult is the parsed reply to mining.subscribe.
type SubscribeResult struct {
	Extranonce1     []byte
	Extranonce2Size int
}

// ParseSubscribeResult decodes {"result":[[...],"<extranonce1>",<size>]}.
func ParseSubscribeResult(res *Response) (SubscribeResult, error) {
	if res.Error != nil {
		return SubscribeResult{}, minererr.Field(minererr.Protocol, "error", res.Error.Message)
	}

	result, ok := res.Result.([]interface{})
	if !ok || len(result) != 3 {
		return SubscribeResult{}, minererr.Field(minererr.Protocol, "result", "expected a 3-element subscribe result array")
	}

	extranonce1Hex, ok := result[1].(string)
	if !ok {
		return SubscribeResult{}, minererr.Field(minererr.Protocol, "extranonce1", "not a string")
	}
	extranonce1, err := bitutil.DecodeHex(extranonce1Hex)
	if err != nil {
		return SubscribeResult{}, minererr.Wrap(minererr.Protocol, "extranonce1", err)
	}
	if len(extranonce1) > 8 {
		return SubscribeResult{}, minererr.Field(minererr.Protocol, "extranonce1", "longer than 8 bytes")
	}

	sizeFloat, ok := result[2].(float64)
	if !ok {
		return SubscribeResult{}, minererr.Field(minererr.Protocol, "extranonce2_size", "not a number")
	}

	return SubscribeResult{Extranonce1: extranonce1, Extranonce2Size: int(sizeFloat)}, nil
}

// ParseAuthorizeResult reports whether mining.authorize succeeded.
func ParseAuthorizeResult(res *Response) (bool, error) {
	if res.Error != nil {
		return false, minererr.Field(minererr.AuthRejected, "error", res.Error.Message)
	}
	ok, _ := res.Result.(bool)
	if !ok {
		return false, minererr.New(minererr.AuthRejected, "authorize returned false")
	}
	return true, nil
}

// ParseSetDifficulty extracts {"params":[<number>]}, replacing a zero or
// negative value with 1. Positive values, fractional ones included, are
// returned unchanged.
func ParseSetDifficulty(req *Request) (float64, error) {
	if len(req.Params) != 1 {
		return 0, minererr.Field(minererr.Protocol, "params", "expected exactly one difficulty value")
	}
	d, ok := req.Params[0].(float64)
	if !ok {
		return 0, minererr.Field(minererr.Protocol, "difficulty", "not a number")
	}
	if d <= 0 {
		d = 1
	}
	return d, nil
}

// NotifyParams is the raw 9-positional-field mining.notify payload,
// decoded but not yet merged with subscribe-time extranonce data.
type NotifyParams struct {
	JobID          string
	PrevHash       [32]byte
	Coinb1         []byte
	Coinb2         []byte
	MerkleBranches [][32]byte
	Version        uint32
	NBits          uint32
	NTime          uint32
	CleanJobs      bool
}

// ParseNotify decodes a mining.notify request's nine positional
// params into a NotifyParams.
func ParseNotify(req *Request) (NotifyParams, error) {
	if len(req.Params) != 9 {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "params", "expected exactly nine notify params")
	}

	var np NotifyParams
	var err error

	np.JobID, err = asString(req.Params[0], "job_id")
	if err != nil {
		return NotifyParams{}, err
	}

	prevHashHex, err := asString(req.Params[1], "prev_hash")
	if err != nil {
		return NotifyParams{}, err
	}
	prevHashRaw, err := bitutil.DecodeHex(prevHashHex)
	if err != nil || len(prevHashRaw) != 32 {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "prev_hash", "not 32 bytes of hex")
	}
	prevHash := bitutil.ReverseBytesCopy(bitutil.RestorePrevHashWordOrder(prevHashRaw))
	copy(np.PrevHash[:], prevHash)

	coinb1Hex, err := asString(req.Params[2], "coinb1")
	if err != nil {
		return NotifyParams{}, err
	}
	np.Coinb1, err = bitutil.DecodeHex(coinb1Hex)
	if err != nil {
		return NotifyParams{}, minererr.Wrap(minererr.Protocol, "coinb1", err)
	}
	if len(np.Coinb1) > 256 {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "coinb1", "longer than 256 bytes")
	}

	coinb2Hex, err := asString(req.Params[3], "coinb2")
	if err != nil {
		return NotifyParams{}, err
	}
	np.Coinb2, err = bitutil.DecodeHex(coinb2Hex)
	if err != nil {
		return NotifyParams{}, minererr.Wrap(minererr.Protocol, "coinb2", err)
	}
	if len(np.Coinb2) > 256 {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "coinb2", "longer than 256 bytes")
	}

	branches, ok := req.Params[4].([]interface{})
	if !ok {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "merkle_branches", "not an array")
	}
	if len(branches) > job.MaxMerkleBranches {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "merkle_branches", "more than 16 branches")
	}
	for _, b := range branches {
		bHex, ok := b.(string)
		if !ok {
			return NotifyParams{}, minererr.Field(minererr.Protocol, "merkle_branch", "not a string")
		}
		raw, err := bitutil.DecodeHex(bHex)
		if err != nil || len(raw) != 32 {
			return NotifyParams{}, minererr.Field(minererr.Protocol, "merkle_branch", "not 32 bytes of hex")
		}
		var branch [32]byte
		copy(branch[:], raw)
		np.MerkleBranches = append(np.MerkleBranches, branch)
	}

	np.Version, err = parseBEHexUint32(req.Params[5], "version")
	if err != nil {
		return NotifyParams{}, err
	}
	np.NBits, err = parseBEHexUint32(req.Params[6], "nbits")
	if err != nil {
		return NotifyParams{}, err
	}
	np.NTime, err = parseBEHexUint32(req.Params[7], "ntime")
	if err != nil {
		return NotifyParams{}, err
	}

	np.CleanJobs, ok = req.Params[8].(bool)
	if !ok {
		return NotifyParams{}, minererr.Field(minererr.Protocol, "clean_jobs", "not a bool")
	}

	return np, nil
}

func asString(v interface{}, field string) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", minererr.Field(minererr.Protocol, field, "not a string")
	}
	return s, nil
}

func parseBEHexUint32(v interface{}, field string) (uint32, error) {
	s, err := asString(v, field)
	if err != nil {
		return 0, err
	}
	raw, err := bitutil.DecodeHex(s)
	if err != nil || len(raw) != 4 {
		return 0, minererr.Field(minererr.Protocol, field, "not 4 bytes of hex")
	}
	return bitutil.BEUint32(raw), nil
}

// FormatError renders a Protocol error for logging without panicking
// on a nil cause.
func FormatError(context string, err error) string {
	return fmt.Sprintf("%s: %v", context, err)
}
