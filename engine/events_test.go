package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusRecent(t *testing.T) {
	b := newEventBus(nil)
	for i := range recentEvents + 20 {
		b.publish(Event{Type: EventScanComplete, Message: fmt.Sprintf("event %d", i)})
	}

	all := b.list(0)
	require.Len(t, all, recentEvents)
	assert.Equal(t, "event 20", all[0].Message)
	assert.Equal(t, fmt.Sprintf("event %d", recentEvents+19), all[len(all)-1].Message)

	last := b.list(3)
	require.Len(t, last, 3)
	assert.Equal(t, all[len(all)-3:], last)

	ids := map[string]bool{}
	for _, ev := range all {
		ids[ev.ID] = true
	}
	assert.Len(t, ids, len(all), "event ids are unique")
}

func TestEventBusSlowSubscriber(t *testing.T) {
	dropped := 0
	b := newEventBus(func() { dropped++ })

	ch, stop := b.subscribe()
	defer stop()

	for range subscriberBuffer + 5 {
		b.publish(Event{Type: EventDegraded})
	}

	assert.Len(t, ch, subscriberBuffer)
	assert.Equal(t, 5, dropped)
}
