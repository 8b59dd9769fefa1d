package worker

import (
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/wytcherly/foreman/internal/cache"
	"github.com/wytcherly/foreman/internal/cogmap"
	"github.com/wytcherly/foreman/internal/logging"
	"github.com/wytcherly/foreman/internal/parser"
)

// PointWriter accepts custom metric points. *influx.Manager satisfies it.
type PointWriter interface {
	WritePoint(bucket string, point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Parser     *parser.Parser
	Perception *cache.PerceptionCache
	// Cogmap and Metrics are optional.
	Cogmap  *cogmap.Writer
	Metrics PointWriter
}

// Manager owns the high-volume host commands that are processed off the
// host thread.
type Manager struct {
	deps Dependencies
	now  func() time.Time
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Parser == nil {
		deps.Parser = parser.NewParser(deps.LogManager.Logger())
	}
	return &Manager{
		deps: deps,
		now:  time.Now,
	}
}
