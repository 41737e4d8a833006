package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// EnvVars is an ordered set of environment variables. Setting an existing
// name replaces its value and keeps its position.
type EnvVars struct {
	names  []string
	values map[string]string
}

// NewEnvVars returns an empty set.
func NewEnvVars() *EnvVars {
	return &EnvVars{values: make(map[string]string)}
}

// Set adds or replaces a variable.
func (e *EnvVars) Set(name, value string) {
	if _, ok := e.values[name]; !ok {
		e.names = append(e.names, name)
	}
	e.values[name] = value
}

// SetBool sets a "true"/"false" flag.
func (e *EnvVars) SetBool(name string, value bool) {
	e.Set(name, strconv.FormatBool(value))
}

// SetYesNo sets a "yes"/"no" flag.
func (e *EnvVars) SetYesNo(name string, value bool) {
	if value {
		e.Set(name, "yes")
	} else {
		e.Set(name, "no")
	}
}

// Get returns the value of name and whether it is set.
func (e *EnvVars) Get(name string) (string, bool) {
	v, ok := e.values[name]
	return v, ok
}

// Keys returns the names in insertion order.
func (e *EnvVars) Keys() []string {
	return append([]string(nil), e.names...)
}

// Len returns the number of variables.
func (e *EnvVars) Len() int { return len(e.names) }

// Merge sets every variable of other, in other's order.
func (e *EnvVars) Merge(other *EnvVars) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		e.Set(name, other.values[name])
	}
}

// Map returns an unordered copy.
func (e *EnvVars) Map() map[string]string {
	out := make(map[string]string, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the variables as a JSON object keeping their order.
func (e *EnvVars) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range e.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(e.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of strings keeping the order of its keys.
func (e *EnvVars) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("environment must be a JSON object")
	}

	*e = EnvVars{values: make(map[string]string)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("invalid environment variable name %v", tok)
		}
		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("invalid value of %s: %w", name, err)
		}
		e.Set(name, value)
	}

	_, err = dec.Token()
	return err
}
