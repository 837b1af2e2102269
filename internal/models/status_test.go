package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusUploading, StatusSuccess, StatusError}
	allowed := map[Status][]Status{
		StatusPending:   {StatusUploading},
		StatusUploading: {StatusSuccess, StatusError},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, ok := range allowed[from] {
				if ok == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
		assert.False(t, from.CanTransition(Status(42)), "%s -> unknown", from)
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusUploading.Terminal())
	assert.True(t, StatusSuccess.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.Panics(t, func() { Status(9).Terminal() })
}

func TestStatusJSON(t *testing.T) {
	e := NewEntry("id-1", "a.pdf", 10)
	e.Status = StatusUploading

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"uploading"`)
	assert.NotContains(t, string(data), `"error"`)

	var back Entry
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, StatusUploading, back.Status)

	_, err = json.Marshal(Entry{Status: Status(7)})
	assert.Error(t, err)

	assert.Error(t, json.Unmarshal([]byte(`{"status":"retrying"}`), &back))
}
