package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need to be
// valid JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectDealsFound:
		var p DealsFoundPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		if p.RunID == "" {
			return schemaErr(subject, errors.New("run_id is required"))
		}
	case SubjectJobCompleted:
		var p JobCompletedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		if p.Status == "" {
			return schemaErr(subject, errors.New("status is required"))
		}
	case SubjectJobTrigger:
		var p JobTriggerPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
	case SubjectAlertsTriggered:
		var p AlertTriggeredPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return schemaErr(subject, err)
		}
		if p.AlertID == 0 || p.UserID == 0 {
			return schemaErr(subject, errors.New("alert_id and user_id are required"))
		}
	}
	return nil
}

func schemaErr(subject string, err error) error {
	return fmt.Errorf("schema validation failed for %s: %w", subject, err)
}
