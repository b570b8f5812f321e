package service

import "symptomcheck/internal/model"

// Broadcaster interface for WebSocket broadcasting (avoids import cycle)
type Broadcaster interface {
	BroadcastSnapshot(assessmentID string, snap *model.Snapshot)
	Disconnect(assessmentID string)
}
