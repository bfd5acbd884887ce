package sync

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/fieldpay/recordsync/pkg/fallback"
	"github.com/fieldpay/recordsync/pkg/remote"
	"github.com/fieldpay/recordsync/pkg/types/record"
)

// RemoteClient is the subset of *remote.Client the sync engine uses.
type RemoteClient interface {
	FetchPage(ctx context.Context, recordType string, offset, limit int, filter string) ([]remote.Record, int, error)
	FetchDetail(ctx context.Context, recordType string, id string) (remote.Record, error)
	fallback.QueryRunner
}

// RemoteSource lists and fetches one record type, mapping raw records with
// the type's mappers.
type RemoteSource[E record.Entity] struct {
	client RemoteClient
	typ    record.Type[E]
	filter string
}

func NewRemoteSource[E record.Entity](client RemoteClient, typ record.Type[E], filter string) *RemoteSource[E] {
	return &RemoteSource[E]{client: client, typ: typ, filter: filter}
}

// FetchPage skips rows that cannot be mapped but still counts them, so paging
// follows what the server returned.
func (s *RemoteSource[E]) FetchPage(ctx context.Context, offset, limit int) ([]E, int, error) {
	rows, count, err := s.client.FetchPage(ctx, s.typ.Name, offset, limit, s.filter)
	if err != nil {
		return nil, 0, err
	}

	out := make([]E, 0, len(rows))
	for _, row := range rows {
		e, err := s.typ.FromSummary(row)
		if err != nil {
			ctxzap.Extract(ctx).Warn("skipping unusable summary row",
				zap.String("record_type", s.typ.Name),
				zap.Error(err),
			)
			continue
		}
		out = append(out, e)
	}
	return out, count, nil
}

func (s *RemoteSource[E]) FetchDetail(ctx context.Context, id string) (E, error) {
	r, err := s.client.FetchDetail(ctx, s.typ.Name, id)
	if err != nil {
		var zero E
		return zero, err
	}
	return s.typ.FromDetail(r)
}

// NewForType wires a controller for typ against client, including the query
// fallback.
func NewForType[E record.Entity](
	ctx context.Context,
	client RemoteClient,
	typ record.Type[E],
	filter string,
	cfg Config,
	opts ...Option[E],
) (*Controller[E], error) {
	if cfg.EntityType == "" {
		cfg.EntityType = typ.Name
	}
	src := NewRemoteSource(client, typ, filter)
	resolver := fallback.NewResolver(client, typ.Label, typ.Fallback, typ.FromFallback)

	opts = append([]Option[E]{WithFallback[E](resolver)}, opts...)
	return NewController[E](ctx, cfg, src, src, opts...)
}
