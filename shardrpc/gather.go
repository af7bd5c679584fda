package shardrpc

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"xdao.co/ledgercore/consensus"
)

// Peer is anything that can return a shard's sample for a round; *Client
// is the network implementation.
type Peer interface {
	Latest(ctx context.Context, roundID string) (consensus.Sample, error)
}

// Gatherer fans out to every shard in parallel and returns whatever arrived
// before ctx ended. A shard that errors, times out, or answers with another
// shard's id is left out and becomes a missing participant in the round.
type Gatherer struct {
	Peers map[string]Peer
	// Limit caps concurrent requests; zero means one goroutine per shard.
	Limit int
	Log   *zap.Logger
}

var _ consensus.Gatherer = (*Gatherer)(nil)

func (g *Gatherer) Gather(ctx context.Context, roundID string, shards []string) ([]consensus.Sample, error) {
	log := g.Log
	if log == nil {
		log = zap.NewNop()
	}
	results := make([]*consensus.Sample, len(shards))

	var eg errgroup.Group
	if g.Limit > 0 {
		eg.SetLimit(g.Limit)
	}
	for i, id := range shards {
		peer, ok := g.Peers[id]
		if !ok {
			log.Warn("no peer configured for shard", zap.String("shard", id))
			continue
		}
		eg.Go(func() error {
			s, err := peer.Latest(ctx, roundID)
			if err != nil {
				log.Warn("shard sample missing",
					zap.String("round", roundID),
					zap.String("shard", id),
					zap.Error(err),
				)
				return nil
			}
			if s.ShardID != id {
				log.Warn("shard answered with a foreign id",
					zap.String("shard", id),
					zap.String("reported", s.ShardID),
				)
				return nil
			}
			results[i] = &s
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]consensus.Sample, 0, len(shards))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, nil
}
