package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/urfave/cli/v2"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

func TestExitCodeForAPIErrorKinds(t *testing.T) {
	cases := map[apierr.Kind]int{
		apierr.KindConfiguration: exitConfiguration,
		apierr.KindValidation:    exitValidation,
		apierr.KindVideoFormat:   exitValidation,
		apierr.KindResource:      exitSystem,
		apierr.KindNetwork:       exitSystem,
		apierr.KindStore:         exitJobFailed,
	}
	for kind, want := range cases {
		err := apierr.New(kind, "x", errors.New("boom"))
		assert.Equal(t, want, exitCodeFor(err), "kind %s", kind)
	}
}

func TestExitCodeForPlainErrorIsSystem(t *testing.T) {
	assert.Equal(t, exitSystem, exitCodeFor(errors.New("unexpected")))
}

func TestExitCodeForCLIExitCoder(t *testing.T) {
	err := cli.Exit("nope", exitCancelled)
	assert.Equal(t, exitCancelled, exitCodeFor(err))
}
