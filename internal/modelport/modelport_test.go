package modelport

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
)

func TestBuildPromptHinDirectVsTranslate(t *testing.T) {
	direct := buildPrompt("hin", Flags{Method: domain.MethodDirect})
	translate := buildPrompt("hin", Flags{Method: domain.MethodTranslate})
	assert.Contains(t, direct, "directly into Hindi")
	assert.Contains(t, translate, "translate each line into Hindi")
}

func TestBuildPromptExtendedAddsAudioCueInstruction(t *testing.T) {
	plain := buildPrompt("eng", Flags{Extended: false})
	extended := buildPrompt("eng", Flags{Extended: true})
	assert.NotContains(t, plain, "door slams")
	assert.Contains(t, extended, "non-speech audio cues")
}

func TestBuildPromptBengali(t *testing.T) {
	p := buildPrompt("ben", Flags{})
	assert.Contains(t, p, "Bengali")
}

func TestExtractTextConcatenatesParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("1\n00:00:00,000 --> 00:00:01,000\n"), genai.Text("hi\n")}}},
		},
	}
	text, err := extractText(resp)
	require.NoError(t, err)
	assert.True(t, strings.Contains(text, "hi"))
}

func TestExtractTextEmptyResponse(t *testing.T) {
	_, err := extractText(&genai.GenerateContentResponse{})
	assert.Error(t, err)
}

func TestClassifyGenerateErrorMapsKinds(t *testing.T) {
	cases := map[string]apierr.Kind{
		"permission denied":          apierr.KindAuth,
		"quota exceeded":             apierr.KindQuota,
		"response blocked by safety": apierr.KindSafetyBlocked,
		"invalid argument: bad uri":  apierr.KindValidation,
		"service unavailable":        apierr.KindTransientModel,
		"something unexpected":       apierr.KindTransientModel,
	}
	for msg, wantKind := range cases {
		err := classifyGenerateError("id", errors.New(msg))
		assert.True(t, apierr.Is(err, wantKind), "message %q should classify as %s", msg, wantKind)
	}
}
