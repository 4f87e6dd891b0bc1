//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"memorymap-backend/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogging,
	ProvideLogger,
	ProvideClock,
	ProvideErrorHandler,
	ProvideMetrics,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideEventBridgeClient,
	ProvideRemoteCollection,
	ProvideBudgetStore,
	ProvideNominatim,
	ProvideGeocodeBackend,
	ProvideGeocodeResolver,
	ProvideHub,
	ProvideNotificationSink,
	ProvideAnniversaryService,
	ProvideSessionManager,
	ProvideMemoryQueryService,
	ProvideAuthenticator,
	ProvideWebSocketServer,
	ProvideReadiness,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The returned
// cleanup releases stores, caches and sessions in reverse order.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
