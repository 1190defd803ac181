package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONBStringArray handles string arrays in JSONB format
type JSONBStringArray []string

// Value implements the driver.Valuer interface
func (j JSONBStringArray) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal([]string(j))
}

// Scan implements the sql.Scanner interface
func (j *JSONBStringArray) Scan(value interface{}) error {
	if value == nil {
		*j = []string{}
		return nil
	}

	bytes, err := jsonBytes(value, "JSONBStringArray")
	if err != nil {
		return err
	}

	var arr []string
	if err := json.Unmarshal(bytes, &arr); err != nil {
		return err
	}
	*j = JSONBStringArray(arr)
	return nil
}

// JSONBValues handles the variable values of an execution in JSONB format
type JSONBValues map[string]string

// Value implements the driver.Valuer interface
func (j JSONBValues) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return json.Marshal(map[string]string(j))
}

// Scan implements the sql.Scanner interface
func (j *JSONBValues) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]string)
		return nil
	}

	bytes, err := jsonBytes(value, "JSONBValues")
	if err != nil {
		return err
	}

	var data map[string]string
	if err := json.Unmarshal(bytes, &data); err != nil {
		return err
	}
	*j = JSONBValues(data)
	return nil
}

func jsonBytes(value interface{}, target string) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("cannot scan %T into %s", value, target)
	}
}
