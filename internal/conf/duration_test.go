package conf

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_MarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration Duration
		expected string
	}{
		{"zero", Duration(0), `"0s"`},
		{"30 seconds", Duration(30 * time.Second), `"30s"`},
		{"10 minutes", Duration(10 * time.Minute), `"10m0s"`},
		{"1 hour", Duration(time.Hour), `"1h0m0s"`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := json.Marshal(tt.duration)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(b))
		})
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected Duration
		wantErr  bool
	}{
		{name: "duration string", input: `"30s"`, expected: Duration(30 * time.Second)},
		{name: "compound string", input: `"1h30m"`, expected: Duration(time.Hour + 30*time.Minute)},
		{name: "nanosecond number", input: `30000000000`, expected: Duration(30 * time.Second)},
		{name: "null resets to zero", input: `null`, expected: Duration(0)},
		{name: "invalid string", input: `"notaduration"`, wantErr: true},
		{name: "boolean", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Duration(time.Second)
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	type timeouts struct {
		Fetch Duration `yaml:"fetch"`
	}

	original := timeouts{Fetch: Duration(30 * time.Second)}

	b, err := yaml.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(b), "30s")

	var result timeouts
	require.NoError(t, yaml.Unmarshal(b, &result))
	assert.Equal(t, original.Fetch, result.Fetch, "duration should survive YAML round-trip")
}

func TestDuration_YAMLBareInteger(t *testing.T) {
	t.Parallel()

	// Legacy configs may carry bare integer nanosecond values.
	type timeouts struct {
		Fetch Duration `yaml:"fetch"`
	}

	var result timeouts
	err := yaml.Unmarshal([]byte("fetch: 30000000000"), &result)
	require.NoError(t, err)
	assert.Equal(t, Duration(30*time.Second), result.Fetch)
}

func TestDuration_Std(t *testing.T) {
	t.Parallel()

	d := Duration(30 * time.Second)
	assert.Equal(t, 30*time.Second, d.Std())
}
