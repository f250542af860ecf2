package alert

import "github.com/prometheus/common/model"

// Batch represents the top-level webhook payload from Alertmanager.
// Only alerts is required; the envelope fields are kept for logging.
type Batch struct {
	Status   string
	Receiver string
	GroupKey string
	Alerts   []Alert
}

// Alert represents a single alert in the Alertmanager payload.
// Status is required. Labels and annotations are kept in the order they
// appear in the request body and may be empty.
type Alert struct {
	Status       string
	Labels       KV
	Annotations  KV
	StartsAt     string
	EndsAt       string
	GeneratorURL string
	Fingerprint  string
}

// Name returns the alertname label, or empty string if not present.
func (a *Alert) Name() string {
	return a.GetLabel(string(model.AlertNameLabel))
}

// GetLabel returns the value of a label, or empty string if not present.
func (a *Alert) GetLabel(name string) string {
	v, _ := a.Labels.Get(name)
	return v
}

// GetAnnotation returns the value of an annotation, or empty string if not present.
func (a *Alert) GetAnnotation(name string) string {
	v, _ := a.Annotations.Get(name)
	return v
}

// Pair is a single key/value entry.
type Pair struct {
	Key   string
	Value string
}

// KV is an ordered set of key/value pairs. Keys are unique.
type KV []Pair

// Get returns the value stored under key and whether it was present.
func (kv KV) Get(key string) (string, bool) {
	for _, p := range kv {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Set stores value under key. An existing key keeps its position.
func (kv *KV) Set(key, value string) {
	for i := range *kv {
		if (*kv)[i].Key == key {
			(*kv)[i].Value = value
			return
		}
	}
	*kv = append(*kv, Pair{Key: key, Value: value})
}

// Map returns the pairs as an unordered map.
func (kv KV) Map() map[string]string {
	m := make(map[string]string, len(kv))
	for _, p := range kv {
		m[p.Key] = p.Value
	}
	return m
}
