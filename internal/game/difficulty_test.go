package game

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDifficultyCyclesAndWraps(t *testing.T) {
	d := Off
	var seen []Difficulty
	for range 6 {
		d = d.Next()
		seen = append(seen, d)
	}
	assert.Equal(t, []Difficulty{Easy, Normal, Difficult, Expert, Off, Easy}, seen)
	assert.True(t, Off < Easy && Easy < Normal && Normal < Difficult && Difficult < Expert)
}

func TestParseDifficulty(t *testing.T) {
	for _, d := range []Difficulty{Off, Easy, Normal, Difficult, Expert} {
		got, err := ParseDifficulty(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}

	got, err := ParseDifficulty(" Expert ")
	require.NoError(t, err)
	assert.Equal(t, Expert, got)

	got, err = ParseDifficulty("")
	require.NoError(t, err)
	assert.Equal(t, Off, got)

	_, err = ParseDifficulty("impossible")
	assert.True(t, errors.Is(err, ErrUnknownDifficulty))
}

func TestDifficultyJSON(t *testing.T) {
	var v struct {
		D Difficulty `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"normal"}`), &v))
	assert.Equal(t, Normal, v.D)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"d":"normal"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"d":"legendary"}`), &v))
}
