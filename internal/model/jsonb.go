package model

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/pkg/errors"
)

func jsonbValue(v interface{}) (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal jsonb column")
	}
	return string(b), nil
}

func jsonbScan(dst interface{}, value interface{}) error {
	if value == nil {
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.Errorf("unsupported jsonb source type %T", value)
	}
	if len(raw) == 0 {
		return nil
	}
	return errors.Wrap(json.Unmarshal(raw, dst), "failed to unmarshal jsonb column")
}
