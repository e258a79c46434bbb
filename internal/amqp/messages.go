package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sync request reasons.
const (
	ReasonMutation = "mutation"
	ReasonManual   = "manual"
	ReasonStartup  = "startup"
)

// SyncRequestMessage asks a worker to reconcile one snapshot with the
// remote. It carries no snapshot data; the worker reads the local copy.
type SyncRequestMessage struct {
	ID          string    `json:"id"`
	SnapshotKey string    `json:"snapshotKey"`
	Revision    int64     `json:"revision"`
	Reason      string    `json:"reason"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewSyncRequestMessage(snapshotKey string, revision int64, reason string) *SyncRequestMessage {
	return &SyncRequestMessage{
		ID:          uuid.NewString(),
		SnapshotKey: snapshotKey,
		Revision:    revision,
		Reason:      reason,
		Timestamp:   time.Now().UTC(),
	}
}

func (m *SyncRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SyncRequestMessageFromJSON decodes a message and rejects ones without a
// snapshot key.
func SyncRequestMessageFromJSON(data []byte) (*SyncRequestMessage, error) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SnapshotKey == "" {
		return nil, errors.New("sync request without snapshot key")
	}
	return &msg, nil
}
