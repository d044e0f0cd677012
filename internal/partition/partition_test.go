package partition

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/geoscore/internal/model"
)

func countyDataset(t *testing.T, ids ...string) *model.Dataset {
	t.Helper()
	recs := make([]model.GeoRecord, len(ids))
	for i, id := range ids {
		recs[i] = model.GeoRecord{ID: id, Attributes: map[string]*float64{"v": model.Float(float64(i))}}
	}
	ds, err := model.NewDataset(recs)
	require.NoError(t, err)
	return ds
}

func TestByState(t *testing.T) {
	ds := countyDataset(t, "06037", "01001", "06001", "48201", "01003")
	parts, err := ByState(ds)
	require.NoError(t, err)

	require.Len(t, parts, 3)
	assert.Equal(t, "01", parts[0].Key)
	assert.Equal(t, []string{"01001", "01003"}, parts[0].Dataset.IDs())
	assert.Equal(t, "06", parts[1].Key)
	assert.Equal(t, []string{"06037", "06001"}, parts[1].Dataset.IDs())
	assert.Equal(t, "48", parts[2].Key)
	assert.True(t, parts[2].Dataset.HasAttribute("v"))
}

func TestByState_InvalidFIPS(t *testing.T) {
	_, err := ByState(countyDataset(t, "AB123"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be numeric")
}

func TestByPrefix_Errors(t *testing.T) {
	ds := countyDataset(t, "06037", "1")
	_, err := ByPrefix(ds, 2)
	var ive *model.InputValidationError
	require.ErrorAs(t, err, &ive)

	_, err = ByPrefix(ds, 0)
	require.ErrorAs(t, err, &ive)
}

func TestByPrefix_County(t *testing.T) {
	ds := countyDataset(t, "06037101100", "06037101200", "06001400100")
	parts, err := ByPrefix(ds, CountyPrefix)
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "06001", parts[0].Key)
	assert.Equal(t, 2, parts[1].Dataset.Len())
}

func TestRunAndMerge(t *testing.T) {
	ds := countyDataset(t, "01001", "01003", "06037", "48201", "48113", "48029")
	parts, err := ByState(ds)
	require.NoError(t, err)

	insufficient := &model.InsufficientDataError{Method: "regression", N: 1, Min: 10}
	outs, err := Run(context.Background(), parts, 2, func(_ context.Context, p Partition) (int, error) {
		if p.Key == "06" {
			return 0, insufficient
		}
		return p.Dataset.Len() * 10, nil
	})
	require.NoError(t, err)
	require.Len(t, outs, 3)

	merged := Merge(outs)
	assert.Equal(t, []string{"01", "48"}, merged.Keys)
	assert.Equal(t, []int{20, 30}, merged.Results)
	assert.Equal(t, 5, merged.Records)
	require.Contains(t, merged.Failures, "06")
	assert.True(t, errors.Is(merged.Failures["06"], insufficient))
}

func TestMerge_OrderIndependent(t *testing.T) {
	a := []Outcome[string]{{Key: "48", N: 1, Result: "tx"}, {Key: "01", N: 2, Result: "al"}}
	b := []Outcome[string]{{Key: "01", N: 2, Result: "al"}, {Key: "48", N: 1, Result: "tx"}}
	assert.Equal(t, Merge(a), Merge(b))
}

func TestRun_TimeoutAborts(t *testing.T) {
	ds := countyDataset(t, "01001", "06037", "48201")
	parts, err := ByState(ds)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = Run(ctx, parts, 1, func(ctx context.Context, p Partition) (int, error) {
		<-ctx.Done()
		return 0, &model.TimeoutError{Method: "test " + p.Key, Cause: ctx.Err()}
	})
	var te *model.TimeoutError
	require.ErrorAs(t, err, &te)
}
