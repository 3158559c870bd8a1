package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameters_SetClamps(t *testing.T) {
	tests := []struct {
		value int
		want  int
	}{
		{value: -5, want: 0},
		{value: 0, want: 0},
		{value: 42, want: 42},
		{value: 100, want: 100},
		{value: 250, want: 100},
	}

	for _, tt := range tests {
		params := NewParameters()
		require.NoError(t, params.Set(Liveness, tt.value))
		got, ok := params.Get(Liveness)
		require.True(t, ok)
		assert.Equal(t, tt.want, got.Value)
		assert.False(t, got.Enabled, "setting a value does not enable it")
	}
}

func TestParameters_UnknownParameter(t *testing.T) {
	params := NewParameters()
	assert.Error(t, params.Set(Parameter("tempo"), 10))
	assert.Error(t, params.Enable(Parameter("tempo"), true))
}

func TestParameters_Defaults(t *testing.T) {
	all := NewParameters().All()
	assert.Len(t, all, 5)
	for name, target := range all {
		assert.False(t, target.Enabled, name)
		assert.Equal(t, 50, target.Value, name)
	}
}

func TestParseParameter(t *testing.T) {
	tests := []struct {
		input   string
		want    Parameter
		wantErr bool
	}{
		{input: "energy", want: Energy},
		{input: "Target_Danceability", want: Danceability},
		{input: " instrumentalness ", want: Instrumentalness},
		{input: "tempo", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseParameter(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "target_"+string(tt.want), got.Key())
		})
	}
}
