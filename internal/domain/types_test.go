package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "Validating", StageValidating.String())
	assert.Equal(t, "Failed", StageFailed.String())
	assert.Equal(t, "Unknown", Stage(999).String())
}

func TestStagesOrderedAndMonotonic(t *testing.T) {
	require := assert.New(t)
	require.Equal(StageCreated, Stages[0])
	require.Equal(StageCompleted, Stages[len(Stages)-1])
	for i := 1; i < len(Stages); i++ {
		require.Greater(int(Stages[i]), int(Stages[i-1]))
	}
}

func TestPromptMethodEmptyForNonHin(t *testing.T) {
	f := Fragment{Language: "eng", Method: MethodNone}
	assert.Equal(t, PromptMethod(""), f.Method)
}
