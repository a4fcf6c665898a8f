package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollectorSetsJourneyGauges(t *testing.T) {
	c := NewCollector(JourneyInfo{Duration: 90 * time.Second, Positions: 12, Chapters: 3}, 100*time.Millisecond)

	assert.Equal(t, 90.0, testutil.ToFloat64(c.JourneyDuration))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.JourneyPositions))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.JourneyChapters))
	assert.Equal(t, 0.1, testutil.ToFloat64(c.TickInterval))
}

func TestPlayerMetrics(t *testing.T) {
	c := NewCollector(JourneyInfo{}, time.Second)

	c.PlayerEventInc("PLAY")
	c.PlayerEventInc("POSITION")
	c.PlayerEventInc("POSITION")
	c.PlayerOffsetSet(2500)
	c.TickObserve(time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.PlayerEvents.WithLabelValues("PLAY")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.PlayerEvents.WithLabelValues("POSITION")))
	assert.Equal(t, 2.5, testutil.ToFloat64(c.OffsetTime))
	assert.Equal(t, 1, testutil.CollectAndCount(c.TickDuration))
}

func TestNATSMetrics(t *testing.T) {
	c := NewCollector(JourneyInfo{}, time.Second)

	c.NATSSetConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))
	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))

	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	c.PublishObserve(time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))
}

func TestHandler(t *testing.T) {
	c := NewCollector(JourneyInfo{Positions: 2}, time.Second)
	c.PlayerEventInc("PAUSE")

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `simulator_player_events_total{type="PAUSE"} 1`), body)
	assert.Contains(t, body, "simulator_journey_positions 2")
}
