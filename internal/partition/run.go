package partition

import (
	"context"
	"errors"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/geoscore/internal/model"
)

// Outcome is the result of analyzing one partition.
type Outcome[T any] struct {
	Key    string
	N      int
	Result T
	Err    error
}

// Run applies fn to every partition with at most limit running at once.
// Partitions share no state; each outcome lands in its own slot, so no
// locking is needed. A failing partition is recorded in its Outcome and the
// others continue, except for timeouts and cancellation, which abort the run.
func Run[T any](ctx context.Context, parts []Partition, limit int, fn func(context.Context, Partition) (T, error)) ([]Outcome[T], error) {
	if limit < 1 {
		limit = 1
	}
	log := zap.L().With(zap.String("component", "partition"))
	log.Info("running partitions", zap.Int("partitions", len(parts)), zap.Int("concurrency", limit))

	outs := make([]Outcome[T], len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, p := range parts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return abortErr(p.Key, err)
			}
			res, err := fn(gctx, p)
			outs[i] = Outcome[T]{Key: p.Key, N: p.Dataset.Len(), Result: res, Err: err}
			if err == nil {
				log.Debug("partition complete", zap.String("key", p.Key), zap.Int("records", p.Dataset.Len()))
				return nil
			}

			var te *model.TimeoutError
			if errors.As(err, &te) || errors.Is(err, context.Canceled) {
				return err
			}
			log.Warn("partition failed", zap.String("key", p.Key), zap.Int("records", p.Dataset.Len()), zap.Error(err))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "partition: run")
	}
	return outs, nil
}

func abortErr(key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &model.TimeoutError{Method: "partition " + key, Cause: err}
	}
	return err
}

// Merged is the reduction of a partitioned run.
type Merged[T any] struct {
	Keys     []string
	Results  []T
	Records  int
	Failures map[string]error
}

// Merge reduces outcomes into key-ordered successes and a failure map. It is
// a pure function of its input.
func Merge[T any](outs []Outcome[T]) Merged[T] {
	sorted := append([]Outcome[T](nil), outs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	m := Merged[T]{Failures: make(map[string]error)}
	for _, o := range sorted {
		if o.Err != nil {
			m.Failures[o.Key] = o.Err
			continue
		}
		m.Keys = append(m.Keys, o.Key)
		m.Results = append(m.Results, o.Result)
		m.Records += o.N
	}
	return m
}
