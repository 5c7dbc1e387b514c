package index

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryannaik/nubfinder/internal/feed"
)

func newIndex(t *testing.T, items []feed.Item) *Index {
	t.Helper()
	idx, err := New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	if items != nil {
		require.NoError(t, idx.Rebuild(items))
	}
	return idx
}

func pairs(results []Result) [][2]string {
	out := make([][2]string, 0, len(results))
	for _, r := range results {
		out = append(out, [2]string{r.Source, r.Tags})
	}
	return out
}

func TestSearchExample(t *testing.T) {
	idx := newIndex(t, []feed.Item{
		{Source: "u1", Tags: []string{"happy", "cat"}},
		{Source: "u2", Tags: []string{"sad", "dog"}},
	})
	ctx := context.Background()

	got, err := idx.Search(ctx, "cat")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"u1", "happy, cat"}}, pairs(got))

	got, err = idx.Search(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"u2", "sad, dog"}}, pairs(got))

	got, err = idx.Search(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := newIndex(t, nil)
	got, err := idx.Search(context.Background(), "cat")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, idx.Count())
	assert.Zero(t, idx.Generation())
}

func TestSearchExactSource(t *testing.T) {
	items := make([]feed.Item, 0, 40)
	for i := 0; i < 40; i++ {
		items = append(items, feed.Item{
			Source: fmt.Sprintf("https://tenor.com/view/nub-cat-%d", i),
			Tags:   []string{"nub", "cat", fmt.Sprintf("pose%d", i)},
		})
	}
	idx := newIndex(t, items)

	for _, item := range items {
		got, err := idx.Search(context.Background(), item.Source)
		require.NoError(t, err)
		require.NotEmpty(t, got, item.Source)
		assert.Contains(t, pairs(got), [2]string{item.Source, item.JoinedTags()})
	}
}

func TestSearchSourceVerbatim(t *testing.T) {
	src := "https://content.example.com/images/Black-Boi holding 4.jpg?x=1&y=%20"
	idx := newIndex(t, []feed.Item{{Source: src, Tags: []string{"four"}}})

	got, err := idx.Search(context.Background(), "four")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, src, got[0].Source)
}

func TestSearchLimitAndOrdering(t *testing.T) {
	items := make([]feed.Item, 0, 30)
	for i := 0; i < 30; i++ {
		tags := []string{"cat"}
		for j := 0; j < i%5; j++ {
			tags = append(tags, fmt.Sprintf("filler%d", j))
		}
		items = append(items, feed.Item{Source: fmt.Sprintf("u%d", i), Tags: tags})
	}
	idx := newIndex(t, items)

	got, err := idx.Search(context.Background(), "cat")
	require.NoError(t, err)
	require.Len(t, got, MaxResults)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
	// Shortest tag strings score highest under length normalization.
	assert.Equal(t, "cat", got[0].Tags)
}

func TestSearchTieBreaksByInsertionOrder(t *testing.T) {
	items := make([]feed.Item, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, feed.Item{Source: fmt.Sprintf("nub-%02d", 14-i), Tags: []string{"silly", "cat"}})
	}
	idx := newIndex(t, items)

	got, err := idx.Search(context.Background(), "silly")
	require.NoError(t, err)
	require.Len(t, got, MaxResults)
	for i, r := range got {
		assert.Equal(t, items[i].Source, r.Source)
	}

	again, err := idx.Search(context.Background(), "silly")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestSearchDuplicateSourcesBothReturned(t *testing.T) {
	idx := newIndex(t, []feed.Item{
		{Source: "u1", Tags: []string{"cat"}},
		{Source: "u1", Tags: []string{"dog"}},
	})

	got, err := idx.Search(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, [][2]string{{"u1", "cat"}, {"u1", "dog"}}, pairs(got))
}

func TestSearchQueryErrors(t *testing.T) {
	idx := newIndex(t, []feed.Item{{Source: "u1", Tags: []string{"cat"}}})

	for _, q := range []string{"", "   ", "cat +", "+", ":"} {
		_, err := idx.Search(context.Background(), q)
		assert.ErrorIs(t, err, ErrQuery, "query %q", q)
	}
}

func TestSearchCanceled(t *testing.T) {
	idx := newIndex(t, []feed.Item{{Source: "u1", Tags: []string{"cat"}}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Search(ctx, "cat")
	assert.ErrorIs(t, err, ErrQuery)

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err = idx.Search(ctx, "cat")
	assert.ErrorIs(t, err, ErrQuery)

	got, err := idx.Search(context.Background(), "cat")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRebuildReplacesCorpus(t *testing.T) {
	idx := newIndex(t, []feed.Item{
		{Source: "a-only", Tags: []string{"cat", "old"}},
		{Source: "shared", Tags: []string{"cat"}},
	})
	require.NoError(t, idx.Rebuild([]feed.Item{
		{Source: "shared", Tags: []string{"cat"}},
		{Source: "b-only", Tags: []string{"cat", "new"}},
	}))

	for _, q := range []string{"cat", "old", "a-only", "shared"} {
		got, err := idx.Search(context.Background(), q)
		require.NoError(t, err)
		for _, r := range got {
			assert.NotEqual(t, "a-only", r.Source, "query %q leaked a stale document", q)
		}
	}
	assert.EqualValues(t, 2, idx.Count())
	assert.EqualValues(t, 2, idx.Generation())
}

func TestRebuildAfterClose(t *testing.T) {
	idx, err := New()
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	assert.ErrorIs(t, idx.Rebuild([]feed.Item{{Source: "u1", Tags: []string{"cat"}}}), ErrIndexWrite)
	_, err = idx.Search(context.Background(), "cat")
	assert.ErrorIs(t, err, ErrQuery)
}

// Each generation tags every document with its own marker and carries a
// distinct document count, so a mixed view shows up as mismatched markers.
func TestSearchDuringRebuildSeesOneGeneration(t *testing.T) {
	generation := func(g int) []feed.Item {
		n := 5 + g%7
		items := make([]feed.Item, 0, n)
		for i := 0; i < n; i++ {
			items = append(items, feed.Item{
				Source: fmt.Sprintf("g%d-%d", g, i),
				Tags:   []string{"nub", fmt.Sprintf("gen%d", g)},
			})
		}
		return items
	}
	idx := newIndex(t, generation(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for g := 1; g <= 40; g++ {
			assert.NoError(t, idx.Rebuild(generation(g)))
		}
		cancel()
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				got, err := idx.Search(context.Background(), "nub")
				if !assert.NoError(t, err) {
					return
				}
				if !assert.NotEmpty(t, got) {
					return
				}
				prefix := strings.SplitN(got[0].Source, "-", 2)[0]
				marker := "gen" + strings.TrimPrefix(prefix, "g")
				scores := got[0].Score
				for _, hit := range got {
					assert.True(t, strings.HasPrefix(hit.Source, prefix+"-"), "mixed generations: %v", got)
					assert.Equal(t, "nub, "+marker, hit.Tags)
					assert.Equal(t, scores, hit.Score)
				}
			}
		}()
	}
	wg.Wait()

	got, err := idx.Search(context.Background(), "gen40")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}
