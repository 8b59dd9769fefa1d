package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		name     string
		model    interface{ TableName() string }
		expected string
	}{
		{"Info", &Info{}, "foreman_infos"},
		{"Session", &Session{}, "sessions"},
		{"PowerStateChange", &PowerStateChange{}, "power_state_changes"},
		{"SubsystemChange", &SubsystemChange{}, "subsystem_changes"},
		{"CapabilityChange", &CapabilityChange{}, "capability_changes"},
		{"Assignment", &Assignment{}, "assignments"},
		{"StateTransition", &StateTransition{}, "state_transitions"},
		{"StatusReport", &StatusReport{}, "status_reports"},
		{"Decision", &Decision{}, "decisions"},
		{"Performance", &Performance{}, "performances"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
}

func TestDatabaseModelsCoversEveryTable(t *testing.T) {
	assert.Len(t, DatabaseModels, 10)
	for _, m := range DatabaseModels {
		_, ok := m.(interface{ TableName() string })
		assert.True(t, ok, "%T has no TableName", m)
	}
}
