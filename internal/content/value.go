package content

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// FieldTypeCollection is the storage type tag of collection fields.
const FieldTypeCollection = "collection"

// EncodeValue renders a field value for storage backends that keep values as
// JSON documents.
func EncodeValue(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeValue restores a stored value. Collection values come back as
// []CollectionItem, everything else as the generic JSON shape.
func DecodeValue(fieldType string, raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if fieldType == FieldTypeCollection {
		var items []CollectionItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("decode collection value: %w", err)
		}
		return items, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decode field value: %w", err)
	}
	return v, nil
}

// ValueText is the text form used to filter and sort on a field value.
func ValueText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
