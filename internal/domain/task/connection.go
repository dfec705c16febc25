package task

import (
	"time"

	"github.com/google/uuid"
)

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseOpening    Phase = "opening"
	PhaseStreaming  Phase = "streaming"
	PhaseCompleting Phase = "completing"
	PhaseErroring   Phase = "erroring"
	PhaseCancelling Phase = "cancelling"
	PhaseClosed     Phase = "closed"
)

type ConnectionState struct {
	ConnectionID    uuid.UUID `json:"connection_id"`
	Phase           Phase     `json:"phase"`
	HasReceivedData bool      `json:"has_received_data"`
	HasCompleted    bool      `json:"has_completed"`
	OpenedAt        time.Time `json:"opened_at"`
}
