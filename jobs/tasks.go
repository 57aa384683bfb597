package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueMaintenance runs scans and cache upkeep.
	QueueMaintenance = "maintenance"

	// TaskAreasIntegrity scans the area hierarchy for path violations.
	TaskAreasIntegrity = "areas:integrity"
	// TaskAreasWarm rebuilds the cached active area tree.
	TaskAreasWarm = "areas:warm"
)

// AreasIntegrityPayload describes one integrity scan request.
type AreasIntegrityPayload struct {
	Reason string `json:"reason"`
}

// NewAreasIntegrityTask constructs an integrity scan task.
func NewAreasIntegrityTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(AreasIntegrityPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAreasIntegrity, data, asynq.Queue(QueueMaintenance)), nil
}

// AreasWarmPayload describes one warm-up request.
type AreasWarmPayload struct {
	Reason string `json:"reason"`
}

// NewAreasWarmTask constructs a tree cache warm-up task. Warm-ups are unique
// for a minute so bursts of area writes collapse into one.
func NewAreasWarmTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(AreasWarmPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAreasWarm, data, asynq.Queue(QueueMaintenance), asynq.Unique(time.Minute)), nil
}

func decodePayload(t *asynq.Task, v any) error {
	if len(t.Payload()) == 0 {
		return nil
	}
	return json.Unmarshal(t.Payload(), v)
}
