package di

import (
	"net/http"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/application/services"
	"memorymap-backend/application/session"
	"memorymap-backend/infrastructure/config"
	"memorymap-backend/infrastructure/geocoding"
	"memorymap-backend/infrastructure/notification"
	"memorymap-backend/interfaces/websocket"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logging       *Logging
	Logger        *zap.Logger
	Clock         clock.Clock
	ErrorHandler  *pkgerrors.ErrorHandler
	Metrics       *observability.Metrics
	Remote        ports.RemoteCollection
	Budgets       ports.KeyValueStore
	Nominatim     *geocoding.NominatimBackend
	Resolver      *services.GeocodeResolver
	Hub           *websocket.Hub
	Notifier      *notification.MultiSink
	Anniversaries *services.AnniversaryService
	Sessions      *session.Manager
	Router        http.Handler
}

// ApplyConfig applies the settings that may change at runtime: log level
// and the geocoding User-Agent. Everything else needs a restart.
func (c *Container) ApplyConfig(cfg *config.Config) {
	if lvl, err := zap.ParseAtomicLevel(cfg.Logging.Level); err == nil {
		c.Logging.Level.SetLevel(lvl.Level())
	} else {
		c.Logger.Warn("Ignoring invalid log level", zap.String("level", cfg.Logging.Level))
	}
	if cfg.Geocoding.UserAgent != "" && cfg.Geocoding.UserAgent != c.Nominatim.UserAgent() {
		c.Nominatim.SetUserAgent(cfg.Geocoding.UserAgent)
		c.Logger.Info("Geocoding user agent updated", zap.String("userAgent", cfg.Geocoding.UserAgent))
	}
}
