package linkage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/probate-link/internal/model"
)

func TestAccountFromURL(t *testing.T) {
	assert.Equal(t, "0012340000001", AccountFromURL(detailURL("0012340000001")))
	assert.Equal(t, "42", AccountFromURL("Real.asp?ACCT=42&x=1"))
	assert.Equal(t, "", AccountFromURL("https://public.hcad.org/records/Real.asp"))
}

func TestCacheKeys(t *testing.T) {
	ref := model.DetailRef{URL: detailURL("111"), Account: "111"}
	assert.Equal(t, []string{"111"}, CacheKeys(ref))

	ref.Account = "R-111"
	assert.Equal(t, []string{"111", "R-111"}, CacheKeys(ref))

	assert.Empty(t, CacheKeys(model.DetailRef{URL: "about:blank"}))
}

func TestDetailCache_Aliases(t *testing.T) {
	c := NewDetailCache()
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (*model.CandidateDetail, error) {
		calls++
		return &model.CandidateDetail{Account: "999", Owner: "DOE JOHN"}, nil
	}

	d1, err := c.GetOrFetch(ctx, []string{"111", "R-111"}, fetch)
	require.NoError(t, err)

	for _, key := range []string{"111", "R-111", "999"} {
		got, ok := c.Get(key)
		require.True(t, ok, key)
		assert.Same(t, d1, got, key)
	}

	d2, err := c.GetOrFetch(ctx, []string{"999"}, fetch)
	require.NoError(t, err)
	assert.Same(t, d1, d2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 3, c.Len())
}

func TestDetailCache_NeverOverwrites(t *testing.T) {
	c := NewDetailCache()
	ctx := context.Background()
	first := &model.CandidateDetail{Account: "111", Owner: "FIRST"}

	_, err := c.GetOrFetch(ctx, []string{"111"}, func(context.Context) (*model.CandidateDetail, error) {
		return first, nil
	})
	require.NoError(t, err)

	got, err := c.GetOrFetch(ctx, []string{"222", "111"}, func(context.Context) (*model.CandidateDetail, error) {
		t.Fatal("fetch must not run for a cached alias")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.Equal(t, 1, c.Fetches())
}

func TestDetailCache_ConcurrentSingleFetch(t *testing.T) {
	c := NewDetailCache()
	ctx := context.Background()
	fetch := func(context.Context) (*model.CandidateDetail, error) {
		time.Sleep(20 * time.Millisecond)
		return &model.CandidateDetail{Account: "111"}, nil
	}

	const workers = 20
	results := make([]*model.CandidateDetail, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := c.GetOrFetch(ctx, []string{"111"}, fetch)
			assert.NoError(t, err)
			results[i] = d
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, c.Fetches())
	for _, d := range results {
		assert.Same(t, results[0], d)
	}
}

func TestDetailCache_AliasesShareOneFlight(t *testing.T) {
	c := NewDetailCache()
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(context.Context) (*model.CandidateDetail, error) {
		close(started)
		<-release
		return &model.CandidateDetail{Account: "R-111"}, nil
	}

	var first *model.CandidateDetail
	done := make(chan struct{})
	go func() {
		defer close(done)
		d, err := c.GetOrFetch(ctx, []string{"111", "R-111"}, fetch)
		assert.NoError(t, err)
		first = d
	}()
	<-started

	// The listed account alone leads with a different key than the URL
	// account above, but names the same property.
	var second *model.CandidateDetail
	joined := make(chan struct{})
	go func() {
		defer close(joined)
		d, err := c.GetOrFetch(ctx, []string{"R-111"}, func(context.Context) (*model.CandidateDetail, error) {
			return &model.CandidateDetail{Account: "R-111", Owner: "SECOND FETCH"}, nil
		})
		assert.NoError(t, err)
		second = d
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	<-done
	<-joined

	assert.Equal(t, 1, c.Fetches())
	require.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Empty(t, second.Owner)
}

func TestDetailCache_FailuresAreMemoized(t *testing.T) {
	c := NewDetailCache()
	ctx := context.Background()
	boom := errors.New("portal down")
	fetch := func(context.Context) (*model.CandidateDetail, error) { return nil, boom }

	_, err := c.GetOrFetch(ctx, []string{"111"}, fetch)
	require.ErrorIs(t, err, boom)
	_, err = c.GetOrFetch(ctx, []string{"111"}, fetch)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, 1, c.Fetches())
	_, ok := c.Get("111")
	assert.False(t, ok)
}

func TestDetailCache_CancelledFetchNotCached(t *testing.T) {
	c := NewDetailCache()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetOrFetch(ctx, []string{"111"}, func(ctx context.Context) (*model.CandidateDetail, error) {
		return nil, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, c.Len())

	d, err := c.GetOrFetch(context.Background(), []string{"111"}, func(context.Context) (*model.CandidateDetail, error) {
		return &model.CandidateDetail{Account: "111"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "111", d.Account)
	assert.Equal(t, 2, c.Fetches())
}

func TestDetailCache_NoKeys(t *testing.T) {
	c := NewDetailCache()
	for range 2 {
		_, err := c.GetOrFetch(context.Background(), nil, func(context.Context) (*model.CandidateDetail, error) {
			return &model.CandidateDetail{}, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Fetches())
	assert.Zero(t, c.Len())
}
