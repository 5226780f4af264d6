package operations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stepIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.ID()
	}
	return ids
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(newStubStep("a")))
	assert.Error(t, r.Register(newStubStep("a")), "duplicate id")
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(newStubStep("")))

	step, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", step.ID())
	_, err = r.Get("missing")
	assert.Error(t, err)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_GetDependencyOrder(t *testing.T) {
	tests := []struct {
		name    string
		steps   []*stubStep
		want    []string
		wantErr string
	}{
		{
			name:  "registration order when independent",
			steps: []*stubStep{newStubStep("b"), newStubStep("a")},
			want:  []string{"b", "a"},
		},
		{
			name:  "dependencies first",
			steps: []*stubStep{newStubStep("export", "tweak"), newStubStep("tweak", "load"), newStubStep("load")},
			want:  []string{"load", "tweak", "export"},
		},
		{
			name:    "missing dependency",
			steps:   []*stubStep{newStubStep("tweak", "load")},
			wantErr: "non-existent",
		},
		{
			name:    "cycle",
			steps:   []*stubStep{newStubStep("a", "b"), newStubStep("b", "a")},
			wantErr: "cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for _, s := range tt.steps {
				require.NoError(t, r.Register(s))
			}
			ordered, err := r.GetDependencyOrder()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, stepIDs(ordered))
		})
	}
}

func TestRegistry_TweakSteps(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, RegisterTweakSteps(r, &fakeLoader{}, &fakeExporter{}, nil))

	ordered, err := r.GetDependencyOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{StepIDLoad, StepIDTweak, StepIDExport}, stepIDs(ordered))
	assert.Equal(t, []string{StepIDTweak}, r.GetDependents(StepIDLoad))
	assert.Empty(t, r.GetDependents(StepIDExport))
}
