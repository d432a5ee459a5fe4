package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList is a []string stored as a JSON text column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

func (l *StringList) Scan(src any) error {
	data, err := textBytes(src)
	if err != nil || len(data) == 0 {
		*l = nil
		return err
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// StringMap is a map[string]string stored as a JSON text column.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	return string(b), err
}

func (m *StringMap) Scan(src any) error {
	data, err := textBytes(src)
	if err != nil || len(data) == 0 {
		*m = nil
		return err
	}
	return json.Unmarshal(data, (*map[string]string)(m))
}

func textBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
