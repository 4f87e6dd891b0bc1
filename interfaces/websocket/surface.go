package websocket

import (
	"memorymap-backend/application/ports"
	"memorymap-backend/domain/core/entities"
)

// MarkerSurface is the render surface of one user: marker deltas become
// MARKER_ADDED / MARKER_REMOVED frames on the user's connections.
type MarkerSurface struct {
	hub    *Hub
	userID string
}

// SurfaceFor returns the marker surface of userID.
func (h *Hub) SurfaceFor(userID string) ports.RenderSurface {
	return &MarkerSurface{hub: h, userID: userID}
}

// AddMarker never fails: a user without connections picks the markers up
// from the snapshot sent when they connect.
func (s *MarkerSurface) AddMarker(id string, lat, lng float64, label string) error {
	s.hub.SendToUser(s.userID, FrameMarkerAdded, entities.Marker{ID: id, Lat: lat, Lng: lng, Label: label})
	return nil
}

func (s *MarkerSurface) RemoveMarker(id string) error {
	s.hub.SendToUser(s.userID, FrameMarkerRemoved, markerRemovedPayload{ID: id})
	return nil
}

// Publisher forwards session snapshots and draft changes to the hub.
type Publisher struct {
	hub *Hub
}

func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

func (p *Publisher) PublishSnapshot(userID string, snap entities.Snapshot) {
	p.hub.SendToUser(userID, FrameSnapshot, newSnapshotPayload(snap))
}

func (p *Publisher) PublishDraft(userID string, draft entities.Draft) {
	p.hub.SendToUser(userID, FrameDraft, draft)
}
