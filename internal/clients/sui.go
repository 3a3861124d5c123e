package clients

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrTransactionFailed marks a transaction that executed but did not succeed.
var ErrTransactionFailed = errors.New("transaction failed on chain")

const defaultSuiPoll = time.Second

// RPCCaller is satisfied by *rpc.Client.
type RPCCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
}

// MoveCall describes a single entry function call.
type MoveCall struct {
	Package       string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []interface{}
	GasBudget     uint64
}

// SuiObjectRef identifies an object created by a transaction.
type SuiObjectRef struct {
	ObjectID string
	Version  uint64
	Shared   bool
}

// SuiTransaction is the outcome of an executed transaction block.
type SuiTransaction struct {
	Digest  string
	Created []SuiObjectRef
}

// SharedObjects returns the created objects that are shared.
func (t *SuiTransaction) SharedObjects() []string {
	var ids []string
	for _, obj := range t.Created {
		if obj.Shared {
			ids = append(ids, obj.ObjectID)
		}
	}
	return ids
}

type txBytesResponse struct {
	TxBytes string `json:"txBytes"`
}

type txBlockResponse struct {
	Digest  string     `json:"digest"`
	Effects *txEffects `json:"effects,omitempty"`
}

type txEffects struct {
	Status struct {
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	} `json:"status"`
	Created []struct {
		Owner     json.RawMessage `json:"owner"`
		Reference struct {
			ObjectID string      `json:"objectId"`
			Version  json.Number `json:"version"`
		} `json:"reference"`
	} `json:"created,omitempty"`
}

// SuiClient submits Move calls through the Sui JSON-RPC API
type SuiClient struct {
	rpc          RPCCaller
	key          *SuiKeypair
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewSuiClient(logger *zap.Logger, rpcURL, privateKey string) (*SuiClient, error) {
	key, err := ParseSuiKey(privateKey)
	if err != nil {
		return nil, err
	}

	logger.Info("Connecting to Sui", zap.String("rpcURL", rpcURL))
	rpcClient, err := rpc.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Sui RPC client")
	}
	return NewSuiClientWithCaller(logger, rpcClient, key), nil
}

func NewSuiClientWithCaller(logger *zap.Logger, caller RPCCaller, key *SuiKeypair) *SuiClient {
	return &SuiClient{
		rpc:          caller,
		key:          key,
		pollInterval: defaultSuiPoll,
		logger:       logger.With(zap.String("component", "SuiClient")),
	}
}

// Address returns the sender address for this client
func (c *SuiClient) Address() string {
	return c.key.Address()
}

func (c *SuiClient) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.pollInterval = d
	}
}

// BuildMoveCall asks the node to build transaction bytes for call with the
// client's account as sender and gas owner.
func (c *SuiClient) BuildMoveCall(ctx context.Context, call MoveCall) ([]byte, error) {
	typeArgs := call.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := call.Arguments
	if args == nil {
		args = []interface{}{}
	}

	var resp txBytesResponse
	err := c.rpc.CallContext(ctx, &resp, "unsafe_moveCall",
		c.Address(),
		call.Package,
		call.Module,
		call.Function,
		typeArgs,
		args,
		nil,
		strconv.FormatUint(call.GasBudget, 10),
		nil,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unsafe_moveCall %s::%s", call.Module, call.Function)
	}

	txBytes, err := base64.StdEncoding.DecodeString(resp.TxBytes)
	if err != nil || len(txBytes) == 0 {
		return nil, errors.New("node returned invalid transaction bytes")
	}
	return txBytes, nil
}

// ExecuteMoveCall builds, signs and executes call, then waits for the
// transaction to be observable through the fullnode.
func (c *SuiClient) ExecuteMoveCall(ctx context.Context, call MoveCall) (*SuiTransaction, error) {
	txBytes, err := c.BuildMoveCall(ctx, call)
	if err != nil {
		return nil, err
	}

	signature := c.key.SignTransaction(txBytes)

	var resp txBlockResponse
	err = c.rpc.CallContext(ctx, &resp, "sui_executeTransactionBlock",
		base64.StdEncoding.EncodeToString(txBytes),
		[]string{signature},
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	)
	if err != nil {
		return nil, errors.Wrap(err, "sui_executeTransactionBlock")
	}
	if err := ValidateDigest(resp.Digest); err != nil {
		return nil, err
	}

	c.logger.Debug("Transaction executed",
		zap.String("digest", resp.Digest),
		zap.String("function", call.Module+"::"+call.Function))

	return c.WaitForTransaction(ctx, resp.Digest)
}

// WaitForTransaction polls sui_getTransactionBlock until digest is found or
// ctx ends. A failed execution status is reported as ErrTransactionFailed.
func (c *SuiClient) WaitForTransaction(ctx context.Context, digest string) (*SuiTransaction, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		var resp txBlockResponse
		err := c.rpc.CallContext(ctx, &resp, "sui_getTransactionBlock",
			digest,
			map[string]bool{"showEffects": true},
		)
		if err == nil && resp.Effects != nil {
			return toSuiTransaction(digest, resp.Effects)
		}
		if err != nil {
			c.logger.Debug("Transaction not yet available", zap.String("digest", digest), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func toSuiTransaction(digest string, effects *txEffects) (*SuiTransaction, error) {
	if effects.Status.Status != "success" {
		return nil, errors.Wrapf(ErrTransactionFailed, "digest %s: %s", digest, effects.Status.Error)
	}

	tx := &SuiTransaction{Digest: digest}
	for _, created := range effects.Created {
		version, _ := strconv.ParseUint(created.Reference.Version.String(), 10, 64)
		tx.Created = append(tx.Created, SuiObjectRef{
			ObjectID: created.Reference.ObjectID,
			Version:  version,
			Shared:   isSharedOwner(created.Owner),
		})
	}
	return tx, nil
}

func isSharedOwner(raw json.RawMessage) bool {
	var owner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &owner); err != nil {
		return false
	}
	_, ok := owner["Shared"]
	return ok
}

// ValidateDigest checks that digest is a base58 encoded 32 byte hash.
func ValidateDigest(digest string) error {
	raw, err := base58.Decode(digest)
	if err != nil {
		return errors.Wrapf(err, "invalid transaction digest %q", digest)
	}
	if len(raw) != 32 {
		return errors.Errorf("transaction digest %q decodes to %d bytes", digest, len(raw))
	}
	return nil
}
