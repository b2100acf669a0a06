package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageWireShape(t *testing.T) {
	raw, err := json.Marshal(Message{ID: 7, Body: "hi", Author: "alice", CreatedAt: 1700000000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":7,"message":"hi","created_by":"alice","created_at":1700000000}`, string(raw))
}

func TestRangeRequestEmpty(t *testing.T) {
	tests := []struct {
		name string
		req  RangeRequest
		want bool
	}{
		{"unbounded", Unbounded(0, 10), false},
		{"bounded", Bounded(1, 10, 10), false},
		{"single id", Bounded(5, 5, 1), false},
		{"inverted", Bounded(10, 1, 10), true},
		{"negative upper bound", Bounded(0, -3, 10), true},
		{"zero limit", Unbounded(0, 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Empty())
		})
	}
}
