package utils

import (
	"context"
	"testing"
	"time"

	"cart-autofill/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostMatches(t *testing.T) {
	tests := []struct {
		url    string
		domain string
		want   bool
	}{
		{"https://www.migros.ch/de/search?query=milch", "migros.ch", true},
		{"https://migros.ch", "migros.ch", true},
		{"https://WWW.COOP.CH/de/", "coop.ch", true},
		{"https://notmigros.ch/", "migros.ch", false},
		{"https://migros.ch.evil.example/", "migros.ch", false},
		{"about:blank", "migros.ch", false},
		{"https://www.migros.ch/", "", false},
		{"::", "migros.ch", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, HostMatches(tt.url, tt.domain))
		})
	}
}

func TestJSString_EscapesSelectors(t *testing.T) {
	assert.Equal(t, `"input[data-cy=\"quantity-input\"]"`, jsString(`input[data-cy="quantity-input"]`))
	assert.Equal(t, `"it's \\ milk"`, jsString(`it's \ milk`))
}

func TestChromedpPage_WithinResolvesInsideScopes(t *testing.T) {
	page := NewChromedpPage(context.Background(), time.Second)
	assert.Contains(t, page.query("button.add"), `})([], "button.add")`)

	card, ok := page.Within("#list").Within(".card").(*ChromedpPage)
	require.True(t, ok)
	assert.Contains(t, card.query("button.add"), `})(["#list",".card"], "button.add")`)
	assert.Equal(t, "#list .card button.add", card.describe("button.add"))

	// the parent view stays unscoped
	assert.Empty(t, page.scopes)
	assert.Equal(t, "button.add", page.describe("button.add"))
}

func TestBrowserClient_UnknownTab(t *testing.T) {
	client := NewBrowserClient(types.DefaultConfig(), logrus.New())
	defer client.Close()

	_, err := client.WaitForLoad(context.Background(), 42, time.Millisecond)
	assert.ErrorContains(t, err, "unknown tab 42")

	tabs, err := client.Query(context.Background(), "migros.ch")
	require.NoError(t, err)
	assert.Empty(t, tabs)

	_, ok := client.Page(42)
	assert.False(t, ok)
}

func TestBrowserClient_LoadCompletesRegisteredTab(t *testing.T) {
	client := NewBrowserClient(types.DefaultConfig(), logrus.New())
	defer client.Close()

	hooked := make(chan types.Tab, 1)
	client.OnLoad(func(tab types.Tab, page types.Page) {
		assert.NotNil(t, page)
		hooked <- tab
	})

	tabCtx, cancel := context.WithCancel(context.Background())
	bt, snapshot := client.register(tabCtx, cancel, "https://www.migros.ch")
	go func() {
		defer close(bt.loaded)
		client.markLoaded(bt, "https://www.migros.ch/de")
	}()

	// the snapshot handed to the caller is not touched by the loader
	assert.Equal(t, types.TabLoading, snapshot.Status)
	assert.Equal(t, "https://www.migros.ch", snapshot.URL)

	tab, err := client.WaitForLoad(context.Background(), snapshot.ID, time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.TabComplete, tab.Status)
	assert.Equal(t, "https://www.migros.ch/de", tab.URL)
	assert.Equal(t, tab, <-hooked)

	tabs, err := client.Query(context.Background(), "migros.ch")
	require.NoError(t, err)
	assert.Equal(t, []types.Tab{tab}, tabs)
}

func TestSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}
