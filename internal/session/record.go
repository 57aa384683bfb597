package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opsboard/opsboard/internal/principal"
)

// ErrCorruptRecord marks stored session data that cannot be trusted.
var ErrCorruptRecord = errors.New("session: corrupt record")

// wireRecord is the persisted form. ExpiresAt is Unix milliseconds.
type wireRecord struct {
	Principal *principal.Principal `json:"principal"`
	ExpiresAt *int64               `json:"expiresAt,omitempty"`
}

type record struct {
	principal *principal.Principal
	expiresAt time.Time
	// legacy is set when the stored data carried no expiration instant.
	legacy bool
}

func encodeRecord(p *principal.Principal, expiresAt time.Time) ([]byte, error) {
	ms := expiresAt.UnixMilli()
	return json.Marshal(wireRecord{Principal: p, ExpiresAt: &ms})
}

// decodeRecord accepts the wrapped {principal, expiresAt} form and the legacy
// bare principal object.
func decodeRecord(data []byte) (record, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if _, wrapped := probe["principal"]; wrapped {
		var wire wireRecord
		if err := json.Unmarshal(data, &wire); err != nil {
			return record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		if wire.Principal == nil || wire.Principal.ID == 0 {
			return record{}, fmt.Errorf("%w: missing principal", ErrCorruptRecord)
		}
		if wire.ExpiresAt == nil {
			return record{principal: wire.Principal, legacy: true}, nil
		}
		return record{principal: wire.Principal, expiresAt: time.UnixMilli(*wire.ExpiresAt)}, nil
	}
	rawID, ok := probe["id"]
	if !ok || bytes.Equal(bytes.TrimSpace(rawID), []byte("null")) {
		return record{}, fmt.Errorf("%w: unrecognised shape", ErrCorruptRecord)
	}
	var p principal.Principal
	if err := json.Unmarshal(data, &p); err != nil {
		return record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if p.ID == 0 {
		return record{}, fmt.Errorf("%w: missing principal id", ErrCorruptRecord)
	}
	return record{principal: &p, legacy: true}, nil
}
