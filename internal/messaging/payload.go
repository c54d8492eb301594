package messaging

import (
	"bytes"
	"encoding/json"
	"time"
)

const refreshExchangeType = "fanout"

// RefreshPayload тело сообщения об обновлении планет. Все поля необязательные.
type RefreshPayload struct {
	Reason      string    `json:"reason,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	RequestedAt time.Time `json:"requested_at,omitzero"`
}

// decodeRefreshPayload разбирает тело. Пустое тело допустимо.
func decodeRefreshPayload(body []byte) (RefreshPayload, error) {
	var payload RefreshPayload
	if len(bytes.TrimSpace(body)) == 0 {
		return payload, nil
	}
	err := json.Unmarshal(body, &payload)
	return payload, err
}
