package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityLedger verifies every persisted ledger entry balances.
	TaskIntegrityLedger = "integrity:ledger"
	// TaskIntegrityStock verifies cached stock equals the movement log.
	TaskIntegrityStock = "integrity:stock"
	// TaskIntegrityTreasury verifies cached bank balances equal the transaction log.
	TaskIntegrityTreasury = "integrity:treasury"
)

// IntegrityTaskTypes lists the integrity tasks in execution order.
var IntegrityTaskTypes = []string{TaskIntegrityLedger, TaskIntegrityStock, TaskIntegrityTreasury}

// IntegrityPayload scopes an integrity run. A zero CompanyID checks every
// company. Repair rewrites cached stock and balances from their logs; ledger
// imbalances are only reported.
type IntegrityPayload struct {
	CompanyID int64 `json:"company_id,omitempty"`
	Repair    bool  `json:"repair,omitempty"`
}

// NewIntegrityTask constructs an Asynq task for one of the integrity checks.
func NewIntegrityTask(taskType string, payload IntegrityPayload) (*asynq.Task, error) {
	if !knownTask(taskType) {
		return nil, fmt.Errorf("jobs: unknown task %q", taskType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

func knownTask(taskType string) bool {
	for _, t := range IntegrityTaskTypes {
		if t == taskType {
			return true
		}
	}
	return false
}
