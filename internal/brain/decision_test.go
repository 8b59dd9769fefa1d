package brain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wytcherly/foreman/pkg/core"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "clean", in: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "double bracket", in: `{"a":[{"b":1}]]}`, want: `{"a":[{"b":1}]}`},
		{name: "brace bracket", in: `[{"b":{"c":1}}]`, want: `[{"b":{"c":1}]`},
		{name: "float placeholder end", in: `{"d":float}`, want: `{"d":0.0}`},
		{name: "float placeholder mid", in: `{"d":float,"e":1}`, want: `{"d":0.0,"e":1}`},
		{name: "whitespace", in: "  \n{}\t", want: `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestDecisionParser(t *testing.T) {
	p, err := NewDecisionParser()
	require.NoError(t, err)

	valid := `{"summary":"a red cone","target_found":true,"target_tag":"red_cone","action":{"action":"move_to","target":"red_cone","direction":"","speed":"fast"}}`

	t.Run("valid", func(t *testing.T) {
		d, err := p.Parse(valid)
		require.NoError(t, err)
		assert.Equal(t, core.Decision{
			Summary:     "a red cone",
			TargetFound: true,
			TargetTag:   "red_cone",
			Action:      core.ActionDescriptor{Action: "move_to", Target: "red_cone", Speed: "fast"},
		}, d)
	})

	t.Run("fenced", func(t *testing.T) {
		d, err := p.Parse("```json\n" + valid + "\n```")
		require.NoError(t, err)
		assert.Equal(t, "red_cone", d.TargetTag)
	})

	t.Run("unknown action passes through", func(t *testing.T) {
		d, err := p.Parse(`{"summary":"","target_found":false,"target_tag":"","action":{"action":"dance"}}`)
		require.NoError(t, err)
		assert.Equal(t, "dance", d.Action.Action)
	})

	bad := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "I see a cone"},
		{name: "missing action", raw: `{"summary":"","target_found":false,"target_tag":""}`},
		{name: "wrong type", raw: `{"summary":"","target_found":"yes","target_tag":"","action":{"action":"wait"}}`},
		{name: "empty", raw: ""},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(tt.raw)
			assert.ErrorIs(t, err, ErrMalformedDecision)
		})
	}
}

func TestBuildContext(t *testing.T) {
	visible := []core.PerceivedEntity{
		{ID: "1", Name: "Crate_1", Tags: []string{"crate", "red_cone"}, Location: core.Position3D{X: 3, Y: 4}},
		{ID: "2", Name: "Rock_7", Location: core.Position3D{X: 10.04}},
	}
	known := []core.PerceivedEntity{
		visible[0],
		{ID: "3", Name: "Cone_2", Tags: []string{"red_cone"}, Location: core.Position3D{Z: 2}},
		{ID: "4", Name: "Tree", Tags: []string{"tree"}},
	}

	got := BuildContext(`fetch "cone"`, core.Position3D{}, visible, known, "red_cone")

	assert.JSONEq(t, `{
		"command": "fetch \"cone\"",
		"currently_visible": [
			{"tag":"red_cone","distance":5,"position":[3,4,0]},
			{"tag":"Rock_7","distance":10,"position":[10,0,0]},
			{"tag":"red_cone","distance":2,"position":[0,0,2]}
		]
	}`, got)

	assert.JSONEq(t, `{"command":"x","currently_visible":[]}`, BuildContext("x", core.Position3D{}, nil, nil, ""))
}

func TestNormalizeAxis(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{0, 0}, {90, 90}, {180, 180}, {270, -90}, {360, 0}, {-180, 180}, {450, 90},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, normalizeAxis(tt.in), 1e-9, "in=%v", tt.in)
	}
}
