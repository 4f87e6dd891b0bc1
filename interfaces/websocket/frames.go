package websocket

import (
	"encoding/json"
	"time"

	"memorymap-backend/domain/core/entities"
)

// Frame types sent to clients.
const (
	FrameConnectionEstablished = "CONNECTION_ESTABLISHED"
	FrameSnapshot              = "SNAPSHOT"
	FrameMarkerAdded           = "MARKER_ADDED"
	FrameMarkerRemoved         = "MARKER_REMOVED"
	FrameAnniversary           = "ANNIVERSARY"
	FrameDraft                 = "DRAFT"
)

// Frame is the envelope of every server message.
type Frame struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func encodeFrame(frameType string, payload any, now time.Time) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{
		Type:      frameType,
		Timestamp: now.Unix(),
		Data:      data,
	})
}

type connectionPayload struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
}

type snapshotPayload struct {
	Sequence uint64            `json:"sequence"`
	Memories []entities.Memory `json:"memories"`
}

func newSnapshotPayload(snap entities.Snapshot) snapshotPayload {
	return snapshotPayload{Sequence: snap.Sequence(), Memories: snap.Memories()}
}

type markerRemovedPayload struct {
	ID string `json:"id"`
}
