package common

import (
	"encoding/json"
	"time"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Duration is a wrapper type that parses time duration from text.
type Duration struct {
	time.Duration
}

// NewDuration returns Duration wrapping the given time.Duration.
func NewDuration(duration time.Duration) Duration {
	return Duration{duration}
}

// UnmarshalText unmarshalls time duration from text.
func (d *Duration) UnmarshalText(data []byte) error {
	duration, err := time.ParseDuration(string(data))
	if err != nil {
		return err
	}

	d.Duration = duration

	return nil
}

// MarshalJSON marshals the duration as a string, e.g. "1m30s".
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON unmarshals the duration from a JSON string.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var durationStr string
	if err := json.Unmarshal(data, &durationStr); err != nil {
		return err
	}

	return d.UnmarshalText([]byte(durationStr))
}

// MarshalYAML marshals the duration as a string, e.g. "1m30s".
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

// UnmarshalYAML unmarshals the duration from a YAML scalar.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// JSONSchema returns a custom schema to be used for the JSON Schema generation of this type.
func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "string",
		Title:       "Duration",
		Description: "Duration expressed in units: ns, us, ms, s, m, h",
		Examples: []any{
			"1m",
			"300ms",
		},
	}
}
