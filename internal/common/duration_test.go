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
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "milliseconds", input: "250ms", expected: 250 * time.Millisecond},
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "compound", input: "1h30m45s", expected: time.Hour + 30*time.Minute + 45*time.Second},
		{name: "zero", input: "0s", expected: 0},
		{name: "missing unit", input: "100", wantErr: true},
		{name: "bad unit", input: "100x", wantErr: true},
		{name: "empty", input: "", wantErr: true},
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
			assert.Equal(t, tt.expected, d.Duration)
		})
	}
}

func TestDuration_JSONRoundtrip(t *testing.T) {
	original := struct {
		Timeout Duration `json:"timeout"`
	}{Timeout: NewDuration(5 * time.Minute)}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.JSONEq(t, `{"timeout":"5m0s"}`, string(data))

	var decoded struct {
		Timeout Duration `json:"timeout"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.Timeout.Duration, decoded.Timeout.Duration)
}

func TestDuration_YAMLRoundtrip(t *testing.T) {
	original := struct {
		Timeout Duration `yaml:"timeout"`
	}{Timeout: NewDuration(10 * time.Second)}

	data, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded struct {
		Timeout Duration `yaml:"timeout"`
	}
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, original.Timeout.Duration, decoded.Timeout.Duration)
}

func TestDuration_YAMLInvalid(t *testing.T) {
	var decoded struct {
		Timeout Duration `yaml:"timeout"`
	}
	err := yaml.Unmarshal([]byte("timeout: invalid\n"), &decoded)
	require.Error(t, err)
}
