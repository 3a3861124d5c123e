package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"
)

const defaultWormholescanTimeout = 5 * time.Second

type wormholescanVAAResponse struct {
	Data struct {
		TxHash string `json:"txHash"`
	} `json:"data"`
}

// WormholescanClient resolves the source transaction of a VAA through the
// Wormholescan API.
type WormholescanClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWormholescanClient(logger *zap.Logger, baseURL string, timeout time.Duration) *WormholescanClient {
	if timeout <= 0 {
		timeout = defaultWormholescanTimeout
	}
	return &WormholescanClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(zap.String("component", "WormholescanClient")),
	}
}

// LookupSourceTx fetches the source transaction hash for a VAA id.
func (c *WormholescanClient) LookupSourceTx(ctx context.Context, chain vaaLib.ChainID, emitter string, sequence uint64) (string, error) {
	url := fmt.Sprintf("%s/api/v1/vaas/%d/%s/%d", c.baseURL, uint16(chain), NormalizeEmitter(emitter), sequence)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create wormholescan request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "wormholescan request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read wormholescan response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("wormholescan returned status %d", resp.StatusCode)
	}

	var out wormholescanVAAResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", errors.Wrap(err, "failed to unmarshal wormholescan response")
	}
	if out.Data.TxHash == "" {
		return "", errors.New("wormholescan response has no txHash")
	}
	return out.Data.TxHash, nil
}

// SourceTxHash is the best-effort form of LookupSourceTx: any failure yields
// an empty string.
func (c *WormholescanClient) SourceTxHash(ctx context.Context, chain vaaLib.ChainID, emitter string, sequence uint64) string {
	if c == nil || c.baseURL == "" {
		return ""
	}
	txHash, err := c.LookupSourceTx(ctx, chain, emitter, sequence)
	if err != nil {
		c.logger.Debug("Source transaction lookup failed",
			zap.Stringer("chain", chain),
			zap.Uint64("sequence", sequence),
			zap.Error(err))
		return ""
	}
	if !strings.HasPrefix(txHash, "0x") && chain == vaaLib.ChainIDAvalanche {
		txHash = "0x" + txHash
	}
	return txHash
}
