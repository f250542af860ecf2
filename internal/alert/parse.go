package alert

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buger/jsonparser"
)

// ErrMalformed is returned by ParseBatch when the body does not have the
// shape of an Alertmanager webhook payload.
var ErrMalformed = errors.New("malformed payload")

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformed, fmt.Sprintf(format, args...))
}

// ParseBatch parses an Alertmanager webhook body. The whole batch is
// validated before it is returned, so callers never act on a prefix of a
// bad batch.
//
// Label and annotation order follows the body. A key repeated within the
// same object keeps its first position and takes the last value.
func ParseBatch(body []byte) (*Batch, error) {
	if !json.Valid(body) {
		return nil, malformed("body is not valid JSON")
	}
	if _, dataType, _, err := jsonparser.Get(body); err != nil || dataType != jsonparser.Object {
		return nil, malformed("body must be a JSON object")
	}

	alerts, dataType, _, err := jsonparser.Get(body, "alerts")
	if err != nil {
		return nil, malformed("alerts: missing")
	}
	if dataType != jsonparser.Array {
		return nil, malformed("alerts: must be an array, got %s", dataType)
	}

	batch := &Batch{
		Status:   optionalString(body, "status"),
		Receiver: optionalString(body, "receiver"),
		GroupKey: optionalString(body, "groupKey"),
		Alerts:   []Alert{},
	}

	var parseErr error
	index := 0
	_, err = jsonparser.ArrayEach(alerts, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		a, err := parseAlert(value, dataType, index)
		if err != nil {
			parseErr = err
			return
		}
		batch.Alerts = append(batch.Alerts, a)
		index++
	})
	if parseErr != nil {
		return nil, parseErr
	}
	if err != nil {
		return nil, malformed("alerts: %v", err)
	}

	return batch, nil
}

func parseAlert(value []byte, dataType jsonparser.ValueType, index int) (Alert, error) {
	if dataType != jsonparser.Object {
		return Alert{}, malformed("alerts[%d]: must be an object, got %s", index, dataType)
	}

	raw, statusType, _, err := jsonparser.Get(value, "status")
	if err != nil {
		return Alert{}, malformed("alerts[%d].status: missing", index)
	}
	if statusType != jsonparser.String {
		return Alert{}, malformed("alerts[%d].status: must be a string, got %s", index, statusType)
	}
	status, err := jsonparser.ParseString(raw)
	if err != nil {
		return Alert{}, malformed("alerts[%d].status: %v", index, err)
	}

	labels, err := parseKV(value, "labels", index)
	if err != nil {
		return Alert{}, err
	}
	annotations, err := parseKV(value, "annotations", index)
	if err != nil {
		return Alert{}, err
	}

	return Alert{
		Status:       status,
		Labels:       labels,
		Annotations:  annotations,
		StartsAt:     optionalString(value, "startsAt"),
		EndsAt:       optionalString(value, "endsAt"),
		GeneratorURL: optionalString(value, "generatorURL"),
		Fingerprint:  optionalString(value, "fingerprint"),
	}, nil
}

// parseKV reads the object stored under key. A missing or null object
// yields an empty set. Non-string values keep their raw JSON text.
func parseKV(value []byte, key string, index int) (KV, error) {
	raw, dataType, _, err := jsonparser.Get(value, key)
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || dataType == jsonparser.Null {
		return KV{}, nil
	}
	if err != nil {
		return nil, malformed("alerts[%d].%s: %v", index, key, err)
	}
	if dataType != jsonparser.Object {
		return nil, malformed("alerts[%d].%s: must be an object, got %s", index, key, dataType)
	}

	kv := KV{}
	err = jsonparser.ObjectEach(raw, func(k, v []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(k)
		if err != nil {
			return err
		}
		text := string(v)
		if dataType == jsonparser.String {
			if text, err = jsonparser.ParseString(v); err != nil {
				return err
			}
		}
		kv.Set(name, text)
		return nil
	})
	if err != nil {
		return nil, malformed("alerts[%d].%s: %v", index, key, err)
	}
	return kv, nil
}

func optionalString(data []byte, key string) string {
	s, err := jsonparser.GetString(data, key)
	if err != nil {
		return ""
	}
	return s
}
