package vault

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// NewData - creates new instance of vault data
func NewData() (d Data) {
	return make(Data)
}

// Exist - checks if a given field exists
func (d Data) Exist(field string) bool {
	_, ok := d[field]
	return ok
}

// GetString - returns string value from a given field
func (d Data) GetString(field string) (value string) {
	switch v := d[field].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return
}

// GetBool - returns bool value from a given field, accepts both JSON booleans and "true"/"false" strings
func (d Data) GetBool(field string) (value bool) {
	switch v := d[field].(type) {
	case bool:
		return v
	case string:
		value, _ = strconv.ParseBool(v)
	}

	return
}

// GetInt64 - returns int64 value from a given field, numbers decoded by the client arrive as `json.Number`
func (d Data) GetInt64(field string) (value int64) {
	switch v := d[field].(type) {
	case json.Number:
		value, _ = v.Int64()
	case float64:
		value = int64(v)
	case int:
		value = int64(v)
	case int64:
		value = v
	case string:
		value, _ = strconv.ParseInt(v, 10, 64)
	}

	return
}

// GetUint64 - returns uint64 value from a given field
func (d Data) GetUint64(field string) (value uint64) {
	switch v := d[field].(type) {
	case string:
		value, _ = strconv.ParseUint(v, 10, 64)
	case json.Number:
		value, _ = strconv.ParseUint(v.String(), 10, 64)
	default:
		if n := d.GetInt64(field); n > 0 {
			value = uint64(n)
		}
	}

	return
}

// GetStrings - returns the string elements of a list field, non string elements are skipped
func (d Data) GetStrings(field string) (values []string) {
	switch v := d[field].(type) {
	case []string:
		return append(values, v...)
	case []interface{}:
		for _, e := range v {
			if s, ok := e.(string); ok {
				values = append(values, s)
			}
		}
	}

	return
}

// GetData - returns a nested object
func (d Data) GetData(field string) Data {
	switch v := d[field].(type) {
	case Data:
		return v
	case map[string]interface{}:
		return Data(v)
	}
	return nil
}

// GetBytes - returns bytes value from a given field (decoded from base64 URLEncoding)
func (d Data) GetBytes(field string) (bytes []byte, err error) {
	value, ok := d[field].(string)
	if !ok {
		return nil, fmt.Errorf("getbytes: no such field %s", field)
	}

	if len(value) == 0 {
		return nil, fmt.Errorf("getbytes: %s is empty", field)
	}

	return base64.URLEncoding.DecodeString(value)
}

// SetString - sets a field and value in string format
func (d Data) SetString(field, value string) {
	d[field] = value
}

// SetBool - sets a field and value in boolean format
func (d Data) SetBool(field string, value bool) {
	d[field] = strconv.FormatBool(value)
}

// SetUint64 - sets a field and value in uint64 format
func (d Data) SetUint64(field string, value uint64) {
	d[field] = strconv.FormatUint(value, 10)
}

// SetBytes - sets a field and value in bytes encoded using base64 URLEncoding
func (d Data) SetBytes(field string, value []byte) {
	d[field] = base64.URLEncoding.EncodeToString(value)
}

// compact - copy without the fields set to nil, so they are left out of the request body
func (d Data) compact() Data {
	if d == nil {
		return nil
	}

	c := make(Data, len(d))
	for k, v := range d {
		if v != nil {
			c[k] = v
		}
	}
	return c
}
