package common

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "milliseconds", input: "250ms", want: 250 * time.Millisecond},
		{name: "seconds", input: "30s", want: 30 * time.Second},
		{name: "minutes", input: "5m", want: 5 * time.Minute},
		{name: "compound", input: "1h30m45s", want: 1*time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero", input: "0s", want: 0},
		{name: "missing unit", input: "100", wantErr: true},
		{name: "unknown unit", input: "100x", wantErr: true},
		{name: "empty string", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Duration)
		})
	}
}

func TestNewDuration(t *testing.T) {
	d := NewDuration(90 * time.Second)
	assert.Equal(t, 90*time.Second, d.Duration)

	var zero Duration
	assert.Equal(t, time.Duration(0), zero.Duration)
}

func TestDuration_JSON(t *testing.T) {
	type dispatcher struct {
		BatchInterval Duration `json:"batch_interval"`
	}

	t.Run("unmarshal", func(t *testing.T) {
		var cfg dispatcher
		require.NoError(t, json.Unmarshal([]byte(`{"batch_interval":"1h30m"}`), &cfg))
		assert.Equal(t, 90*time.Minute, cfg.BatchInterval.Duration)

		require.Error(t, json.Unmarshal([]byte(`{"batch_interval":"soon"}`), &cfg))
		require.Error(t, json.Unmarshal([]byte(`{"batch_interval":42}`), &cfg))
	})

	t.Run("marshal emits duration string", func(t *testing.T) {
		data, err := json.Marshal(dispatcher{BatchInterval: NewDuration(5 * time.Second)})
		require.NoError(t, err)
		assert.JSONEq(t, `{"batch_interval":"5s"}`, string(data))
	})
}

func TestDuration_YAML(t *testing.T) {
	type rewarm struct {
		Interval Duration `yaml:"rewarm_interval"`
	}

	t.Run("unmarshal", func(t *testing.T) {
		var cfg rewarm
		require.NoError(t, yaml.Unmarshal([]byte("rewarm_interval: 250ms\n"), &cfg))
		assert.Equal(t, 250*time.Millisecond, cfg.Interval.Duration)

		require.Error(t, yaml.Unmarshal([]byte("rewarm_interval: whenever\n"), &cfg))
	})

	t.Run("marshal emits duration string", func(t *testing.T) {
		data, err := yaml.Marshal(rewarm{Interval: NewDuration(10 * time.Second)})
		require.NoError(t, err)
		assert.Equal(t, "rewarm_interval: 10s\n", string(data))
	})
}

func TestDuration_JSONSchema(t *testing.T) {
	schema := Duration{}.JSONSchema()

	require.NotNil(t, schema)
	assert.Equal(t, "string", schema.Type)
	assert.Equal(t, "Duration", schema.Title)
	assert.Contains(t, schema.Description, "Duration expressed in units")
	assert.Contains(t, schema.Examples, "1m")
	assert.Contains(t, schema.Examples, "300ms")
}
