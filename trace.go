package settings

import (
	"encoding/json"
)

// Trace captures how a fallback chain resolved: every candidate path in
// priority order and whether it held a value.
type Trace struct {
	Plugin     string       `json:"plugin,omitempty"`
	Candidates []Provenance `json:"candidates"`
	// Resolved is the index of the candidate that supplied the value, or -1.
	Resolved int `json:"resolved"`
}

// Provenance details one candidate path of a traced lookup.
type Provenance struct {
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// ResolveWithTrace behaves like GetFirstDefined and additionally reports every
// candidate it inspected. Candidates after the first hit are still recorded so
// callers can show which overrides were shadowed. Malformed paths fail.
func (m *Manager) ResolveWithTrace(paths ...string) (any, Trace, error) {
	trace := Trace{Plugin: m.plugin, Resolved: -1}
	var resolved any
	for i, path := range paths {
		p, err := ParsePath(path)
		if err != nil {
			return nil, Trace{}, err
		}
		value, ok := lookup(m.storage, p)
		trace.Candidates = append(trace.Candidates, Provenance{Path: path, Value: value, Found: ok})
		if ok && trace.Resolved < 0 {
			trace.Resolved = i
			resolved = value
		}
	}
	return resolved, trace, nil
}

// ToJSON serialises the trace into JSON for logging or transport helpers.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

// TraceFromJSON deserialises a JSON payload that was previously generated via
// ToJSON.
func TraceFromJSON(payload []byte) (Trace, error) {
	type alias Trace
	var trace alias
	if err := json.Unmarshal(payload, &trace); err != nil {
		return Trace{}, err
	}
	return Trace(trace), nil
}
