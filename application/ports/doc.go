// Package ports declares the interfaces the application layer needs from
// the outside world: the remote memory collection, the geocoding backend,
// notification delivery, the map surface and durable key-value storage.
package ports
