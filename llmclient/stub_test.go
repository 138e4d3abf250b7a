package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubCompleteReturnsNonEmptyAnswer(t *testing.T) {
	s := NewStubProvider()
	resp, err := s.Complete(context.Background(), Request{Messages: []Message{{Role: "user", Content: "what is photosynthesis?"}}})
	require.NoError(t, err)
	assert.Equal(t, "local_stub", resp.Provider)
	assert.NotEmpty(t, resp.Content)
}

func TestStubStreamEmitsOneDeltaThenFinish(t *testing.T) {
	s := NewStubProvider()
	ch, err := s.Stream(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)

	var deltas int
	var finished bool
	for c := range ch {
		if c.Delta != "" {
			deltas++
		}
		if c.FinishReason != "" {
			finished = true
		}
	}
	assert.Equal(t, 1, deltas)
	assert.True(t, finished)
}

func TestStubHealthCheckNeverFails(t *testing.T) {
	s := NewStubProvider()
	assert.NoError(t, s.HealthCheck(context.Background()))
}
