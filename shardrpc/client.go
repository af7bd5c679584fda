package shardrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/ledgercore/consensus"
)

// Client fetches samples from one shard's Samples service.
type Client struct {
	cc     *grpc.ClientConn
	client SamplesClient

	// Timeout applies per RPC when non-zero, in addition to the caller's
	// context deadline.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// Extra options, e.g. a bufconn dialer in tests.
	Options []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts.Options...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewSamplesClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

// Latest fetches and validates the shard's sample for roundID.
func (c *Client) Latest(ctx context.Context, roundID string) (consensus.Sample, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	reply, err := c.client.Latest(ctx, wrapperspb.String(roundID))
	if err != nil {
		return consensus.Sample{}, err
	}
	return decodeSample(roundID, reply)
}
