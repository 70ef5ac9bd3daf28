package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cart-autofill/internal/types"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedDriver fails or panics on chosen item IDs and records call order
type scriptedDriver struct {
	mu      sync.Mutex
	calls   []string
	active  int
	overlap bool
	fail    map[string]bool
	panics  map[string]bool
}

func (d *scriptedDriver) Site() types.Site { return types.SiteMigros }

func (d *scriptedDriver) AddItem(ctx context.Context, item types.ExportItem) error {
	d.mu.Lock()
	d.active++
	if d.active > 1 {
		d.overlap = true
	}
	d.calls = append(d.calls, item.ID)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.active--
		d.mu.Unlock()
	}()

	if d.panics[item.ID] {
		panic("stale element")
	}
	if d.fail[item.ID] {
		return errors.New("add to cart: element not found")
	}
	return nil
}

func testConfig() *types.Config {
	config := types.DefaultConfig()
	config.InterItemDelay = time.Millisecond
	return config
}

func items(ids ...string) []types.ExportItem {
	out := make([]types.ExportItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, types.ExportItem{ID: id, Name: "item " + id, Quantity: "1"})
	}
	return out
}

func TestRun_PartitionsByOutcome(t *testing.T) {
	driver := &scriptedDriver{
		fail:   map[string]bool{"2": true},
		panics: map[string]bool{"4": true},
	}
	o := New(driver, testConfig(), logrus.New(), nil)

	input := items("1", "2", "3", "4", "5")
	result := o.Run(context.Background(), input)

	assert.Equal(t, []types.ExportItem{input[0], input[2], input[4]}, result.Success)
	assert.Equal(t, []types.ExportItem{input[1], input[3]}, result.Failed)
	assert.Len(t, append(result.Success, result.Failed...), len(input))
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, driver.calls)
	assert.False(t, driver.overlap)
}

func TestRun_EmptyList(t *testing.T) {
	o := New(&scriptedDriver{}, testConfig(), logrus.New(), nil)

	result := o.Run(context.Background(), nil)

	require.NotNil(t, result.Success)
	require.NotNil(t, result.Failed)
	assert.Empty(t, result.Success)
	assert.Empty(t, result.Failed)
}

func TestRun_PacesEveryItem(t *testing.T) {
	config := testConfig()
	config.InterItemDelay = 20 * time.Millisecond
	o := New(&scriptedDriver{fail: map[string]bool{"1": true}}, config, logrus.New(), nil)

	start := time.Now()
	o.Run(context.Background(), items("1", "2", "3"))

	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRun_ReportsProgress(t *testing.T) {
	type update struct {
		done, total int
		id          string
		ok          bool
	}
	var updates []update
	progress := func(done, total int, item types.ExportItem, ok bool) {
		updates = append(updates, update{done, total, item.ID, ok})
	}
	o := New(&scriptedDriver{fail: map[string]bool{"b": true}}, testConfig(), logrus.New(), progress)

	o.Run(context.Background(), items("a", "b"))

	assert.Equal(t, []update{{1, 2, "a", true}, {2, 2, "b", false}}, updates)
}

func TestRun_CancelledContextStillAttemptsAll(t *testing.T) {
	driver := &scriptedDriver{}
	config := testConfig()
	config.InterItemDelay = time.Hour
	o := New(driver, config, logrus.New(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan types.AutomationResult, 1)
	go func() { done <- o.Run(ctx, items("1", "2")) }()

	select {
	case result := <-done:
		assert.Len(t, result.Success, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return")
	}
}
