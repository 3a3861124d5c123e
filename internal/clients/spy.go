package clients

import (
	"context"
	"crypto/tls"
	"sort"
	"strings"

	publicrpcv1 "github.com/certusone/wormhole/node/pkg/proto/publicrpc/v1"
	spyv1 "github.com/certusone/wormhole/node/pkg/proto/spy/v1"
	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/orbital-protocol/relayer/internal/probe"
)

// VAAStream yields raw signed VAA bytes until the subscription breaks.
type VAAStream interface {
	Recv() ([]byte, error)
}

// SpyClient handles connections to the Wormhole spy service
type SpyClient struct {
	conn   *grpc.ClientConn
	client spyv1.SpyRPCServiceClient
	logger *zap.Logger
}

// NewSpyClient creates a client for the spy at endpoint. Endpoints with an
// https scheme are dialed over TLS.
func NewSpyClient(logger *zap.Logger, endpoint string) (*SpyClient, error) {
	client := &SpyClient{
		logger: logger.With(zap.String("component", "SpyClient")),
	}

	target, secure, err := probe.DialTarget(endpoint)
	if err != nil {
		return nil, err
	}

	creds := insecure.NewCredentials()
	if secure {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	client.logger.Info("Connecting to spy service",
		zap.String("endpoint", endpoint),
		zap.String("target", target),
		zap.Bool("tls", secure))
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to spy %s", target)
	}

	client.conn = conn
	client.client = spyv1.NewSpyRPCServiceClient(conn)
	return client, nil
}

// Close closes the connection to the spy service
func (c *SpyClient) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Subscribe opens a single signed VAA subscription restricted to the given
// emitters. Retrying is the caller's concern.
func (c *SpyClient) Subscribe(ctx context.Context, emitters map[vaaLib.ChainID]string) (VAAStream, error) {
	req := &spyv1.SubscribeSignedVAARequest{Filters: EmitterFilters(emitters)}

	c.logger.Debug("Subscribing to signed VAAs", zap.Int("filters", len(req.Filters)))
	stream, err := c.client.SubscribeSignedVAA(ctx, req)
	if err != nil {
		return nil, errors.Wrap(err, "subscribe signed VAA")
	}
	return &spyStream{stream: stream}, nil
}

// EmitterFilters builds one spy filter per (chain, emitter) pair, ordered by
// chain id.
func EmitterFilters(emitters map[vaaLib.ChainID]string) []*spyv1.FilterEntry {
	chains := make([]vaaLib.ChainID, 0, len(emitters))
	for chain := range emitters {
		chains = append(chains, chain)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i] < chains[j] })

	filters := make([]*spyv1.FilterEntry, 0, len(chains))
	for _, chain := range chains {
		filters = append(filters, &spyv1.FilterEntry{
			Filter: &spyv1.FilterEntry_EmitterFilter{
				EmitterFilter: &spyv1.EmitterFilter{
					ChainId:        publicrpcv1.ChainID(chain),
					EmitterAddress: NormalizeEmitter(emitters[chain]),
				},
			},
		})
	}
	return filters
}

// NormalizeEmitter strips the 0x prefix, lowercases and left-pads an emitter
// address to 64 hex characters.
func NormalizeEmitter(addr string) string {
	addr = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(addr), "0x"))
	if len(addr) < 64 {
		addr = strings.Repeat("0", 64-len(addr)) + addr
	}
	return addr
}

type spyStream struct {
	stream spyv1.SpyRPCService_SubscribeSignedVAAClient
}

func (s *spyStream) Recv() ([]byte, error) {
	resp, err := s.stream.Recv()
	if err != nil {
		return nil, err
	}
	return resp.VaaBytes, nil
}
