// Package mocks provides test doubles for the application ports.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
)

// MockRemoteCollection is a testify mock of ports.RemoteCollection.
type MockRemoteCollection struct {
	mock.Mock
}

func (m *MockRemoteCollection) Subscribe(ctx context.Context, scope string, onSnapshot ports.SnapshotCallback, onError ports.ErrorCallback) (ports.Subscription, error) {
	args := m.Called(ctx, scope, onSnapshot, onError)
	sub, _ := args.Get(0).(ports.Subscription)
	return sub, args.Error(1)
}

func (m *MockRemoteCollection) GenerateID(ctx context.Context, scope string) (string, error) {
	args := m.Called(ctx, scope)
	return args.String(0), args.Error(1)
}

func (m *MockRemoteCollection) Write(ctx context.Context, scope, id string, record entities.Record) error {
	args := m.Called(ctx, scope, id, record)
	return args.Error(0)
}

func (m *MockRemoteCollection) Delete(ctx context.Context, scope, id string) error {
	args := m.Called(ctx, scope, id)
	return args.Error(0)
}

// MockKeyValueStore is a testify mock of ports.KeyValueStore.
type MockKeyValueStore struct {
	mock.Mock
}

func (m *MockKeyValueStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockKeyValueStore) Put(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

// MockNotificationSink is a testify mock of ports.NotificationSink.
type MockNotificationSink struct {
	mock.Mock
}

func (m *MockNotificationSink) Notify(ctx context.Context, n ports.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockRenderSurface is a testify mock of ports.RenderSurface.
type MockRenderSurface struct {
	mock.Mock
}

func (m *MockRenderSurface) AddMarker(id string, lat, lng float64, label string) error {
	args := m.Called(id, lat, lng, label)
	return args.Error(0)
}

func (m *MockRenderSurface) RemoveMarker(id string) error {
	args := m.Called(id)
	return args.Error(0)
}

// MockGeocodeBackend is a testify mock of ports.GeocodeBackend.
type MockGeocodeBackend struct {
	mock.Mock
}

func (m *MockGeocodeBackend) Lookup(ctx context.Context, lat, lng float64) ([]ports.Address, error) {
	args := m.Called(ctx, lat, lng)
	addrs, _ := args.Get(0).([]ports.Address)
	return addrs, args.Error(1)
}
