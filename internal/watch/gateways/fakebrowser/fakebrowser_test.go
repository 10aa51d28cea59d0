package fakebrowser

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/watchangel/internal/watch/domain"
)

func TestBrowser_PaginatesAndRemoves(t *testing.T) {
	ctx := context.Background()
	b := New(2,
		Item{ID: "aaaaa", Title: "A", ChannelName: "x"},
		Item{ID: "bbbbb", Title: "B", ChannelName: "x"},
		Item{ID: "ccccc", Title: "C", ChannelName: "y"},
	)
	require.NoError(t, b.Navigate(ctx, "https://example.test/feed/history"))

	hs, err := b.FindEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, hs, 2)

	require.NoError(t, b.AdvanceView(ctx, hs[1]))
	hs, err = b.FindEntries(ctx)
	require.NoError(t, err)
	require.Len(t, hs, 3)

	raw, err := b.Extract(ctx, hs[0])
	require.NoError(t, err)
	assert.Equal(t, "/watch?v=aaaaa", raw.URL)
	assert.Equal(t, 1, b.ExtractCount(hs[0].Key()))

	btn, err := b.Find(ctx, domain.TargetRemoveButton, hs[1])
	require.NoError(t, err)
	require.Len(t, btn, 1)
	require.NoError(t, b.Activate(ctx, btn[0]))

	assert.Equal(t, []string{"bbbbb"}, b.RemovedIDs())
	assert.Equal(t, []string{"aaaaa", "ccccc"}, b.RemainingIDs())

	ok, err := b.Interactable(ctx, btn[0])
	require.NoError(t, err)
	assert.False(t, ok, "removed item's button must go stale")
}

func TestBrowser_ChannelHideDialog(t *testing.T) {
	ctx := context.Background()
	b := New(0)
	b.AddChannel(&Channel{URL: "https://example.test/@foo"})
	require.NoError(t, b.Navigate(ctx, "https://example.test/@foo/about"))

	marker, err := b.Find(ctx, domain.TargetReportMarker, nil)
	require.NoError(t, err)
	require.Len(t, marker, 1)

	menu, _ := b.Find(ctx, domain.TargetMenuItem, nil)
	assert.Empty(t, menu, "menu closed before the report button is activated")

	btn, _ := b.Find(ctx, domain.TargetReportButton, nil)
	require.NoError(t, b.Activate(ctx, btn[0]))
	menu, _ = b.Find(ctx, domain.TargetMenuItem, nil)
	var labels []string
	for _, h := range menu {
		l, _ := b.Text(ctx, h)
		labels = append(labels, l)
	}
	assert.Equal(t, []string{LabelReport, LabelHide, LabelKids}, labels)

	require.NoError(t, b.Activate(ctx, menu[1]))
	submit, _ := b.Find(ctx, domain.TargetSubmit, nil)
	require.Len(t, submit, 1)
	require.NoError(t, b.Activate(ctx, submit[0]))
	assert.True(t, b.Channel("https://example.test/@foo").Hidden)
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"page_size": 1,
		"items": [{"id":"abcde","title":"T","channel_name":"C","channel_url":"https://example.test/@c"}],
		"channels": [{"url":"https://example.test/@c","hidden":true}]
	}`), 0o644))

	b, err := LoadFixture(path)
	require.NoError(t, err)
	assert.Equal(t, 1, b.PageSize)
	assert.Equal(t, []string{"abcde"}, b.RemainingIDs())
	assert.True(t, b.Channel("https://example.test/@c").Hidden)

	_, err = LoadFixture(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
