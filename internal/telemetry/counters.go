package telemetry

import (
	"fmt"
	"math"
	"os"
	"sync/atomic"
	"time"

	"serpent-arena/server/internal/ai"
)

// Counters aggregates the live health numbers served by /diagnostics.
// Everything is atomic: the simulation goroutine writes while HTTP
// handlers snapshot concurrently.
type Counters struct {
	ticksTotal         atomic.Uint64
	tickDurationMillis atomic.Int64
	broadcastsTotal    atomic.Uint64
	broadcastBytes     atomic.Uint64
	lastBroadcastBytes atomic.Uint64
	spectatorsJoined   atomic.Uint64
	spectatorsLeft     atomic.Uint64
	spectatorsCurrent  atomic.Int64
	snakesAlive        atomic.Int64
	debug              bool

	aiCalculations   atomic.Uint64
	aiAvgCalcBits    atomic.Uint64
	aiQueueSize      atomic.Int64
	aiTimeouts       atomic.Uint64
	aiFallbacks      atomic.Uint64
	aiFrameOverruns  atomic.Uint64
	aiAdaptiveAdjust atomic.Uint64
}

// Snapshot is the JSON shape of one counters read.
type Snapshot struct {
	TicksTotal         uint64     `json:"ticksTotal"`
	TickDurationMillis int64      `json:"tickDurationMillis"`
	BroadcastsTotal    uint64     `json:"broadcastsTotal"`
	BroadcastBytes     uint64     `json:"broadcastBytes"`
	LastBroadcastBytes uint64     `json:"lastBroadcastBytes"`
	SpectatorsCurrent  int64      `json:"spectatorsCurrent"`
	SpectatorsJoined   uint64     `json:"spectatorsJoined"`
	SpectatorsLeft     uint64     `json:"spectatorsLeft"`
	SnakesAlive        int64      `json:"snakesAlive"`
	AI                 ai.Metrics `json:"ai"`
}

func NewCounters() *Counters {
	c := &Counters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		c.debug = true
	}
	return c
}

func (c *Counters) RecordTick(duration time.Duration) {
	millis := duration.Milliseconds()
	if millis < 0 {
		millis = 0
	}
	c.ticksTotal.Add(1)
	c.tickDurationMillis.Store(millis)
	if c.debug {
		fmt.Printf("[telemetry] tick=%dms ticks=%d aiQueue=%d\n",
			millis, c.ticksTotal.Load(), c.aiQueueSize.Load())
	}
}

func (c *Counters) RecordBroadcast(bytes int) {
	if bytes < 0 {
		bytes = 0
	}
	c.broadcastsTotal.Add(1)
	c.broadcastBytes.Add(uint64(bytes))
	c.lastBroadcastBytes.Store(uint64(bytes))
}

func (c *Counters) SpectatorJoined() {
	c.spectatorsJoined.Add(1)
	c.spectatorsCurrent.Add(1)
}

func (c *Counters) SpectatorLeft() {
	c.spectatorsLeft.Add(1)
	c.spectatorsCurrent.Add(-1)
}

func (c *Counters) SetSnakesAlive(n int) {
	c.snakesAlive.Store(int64(n))
}

// StoreAIMetrics mirrors the scheduler's counters so diagnostics reads
// never touch the single-threaded core.
func (c *Counters) StoreAIMetrics(m ai.Metrics) {
	c.aiCalculations.Store(m.TotalCalculations)
	c.aiAvgCalcBits.Store(math.Float64bits(m.AverageCalculationMs))
	c.aiQueueSize.Store(int64(m.QueueSize))
	c.aiTimeouts.Store(m.Timeouts)
	c.aiFallbacks.Store(m.Fallbacks)
	c.aiFrameOverruns.Store(m.FrameOverruns)
	c.aiAdaptiveAdjust.Store(m.AdaptiveAdjustments)
}

func (c *Counters) DebugEnabled() bool {
	return c.debug
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		TicksTotal:         c.ticksTotal.Load(),
		TickDurationMillis: c.tickDurationMillis.Load(),
		BroadcastsTotal:    c.broadcastsTotal.Load(),
		BroadcastBytes:     c.broadcastBytes.Load(),
		LastBroadcastBytes: c.lastBroadcastBytes.Load(),
		SpectatorsCurrent:  c.spectatorsCurrent.Load(),
		SpectatorsJoined:   c.spectatorsJoined.Load(),
		SpectatorsLeft:     c.spectatorsLeft.Load(),
		SnakesAlive:        c.snakesAlive.Load(),
		AI: ai.Metrics{
			TotalCalculations:    c.aiCalculations.Load(),
			AverageCalculationMs: math.Float64frombits(c.aiAvgCalcBits.Load()),
			QueueSize:            int(c.aiQueueSize.Load()),
			Timeouts:             c.aiTimeouts.Load(),
			Fallbacks:            c.aiFallbacks.Load(),
			FrameOverruns:        c.aiFrameOverruns.Load(),
			AdaptiveAdjustments:  c.aiAdaptiveAdjust.Load(),
		},
	}
}
