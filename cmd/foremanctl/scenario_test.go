package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoSiteScenario = `
foreman:
  position: [0, 0, 0]
workers:
  - id: w1
    name: Bob
    position: [10, 0, 0]
  - id: w2
    position: [-10, 0, 0]
sites:
  - id: wall
    task: Build
    position: [20, 0, 0]
  - id: crates
    task: Task.Haul
    position: [40, 0, 0]
    interaction: 2
duration: 60s
step: 100ms
`

func TestParseScenario(t *testing.T) {
	sc, err := parseScenario([]byte(twoSiteScenario))
	require.NoError(t, err)

	assert.Len(t, sc.Workers, 2)
	assert.Len(t, sc.Sites, 2)
	assert.Equal(t, time.Minute, sc.Duration)
	assert.Equal(t, 100*time.Millisecond, sc.Step)
	assert.Equal(t, 5*time.Second, sc.WorkTime, "default work time")
	assert.InDelta(t, 2, sc.Sites[1].Interaction, 1e-9)
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no workers", "sites: []\n"},
		{"unknown field", "workers: [{id: w1}]\nbogus: 1\n"},
		{"duplicate worker", "workers: [{id: w1}, {id: w1}]\n"},
		{"worker without id", "workers: [{name: Bob}]\n"},
		{"bad task", "workers: [{id: w1}]\nsites: [{id: s1, task: Dance}]\n"},
		{"orphan android", "workers: [{id: w1}]\nandroids: [{id: a9}]\n"},
		{"not yaml", "workers: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseScenario([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}
