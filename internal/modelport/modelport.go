// Package modelport wraps Gemini multimodal generation for subtitle
// production. Model client usage is grounded on the
// generative-ai-go GenerativeModel/GenerateContent pattern found across the
// retrieval pack; prompt construction and schema are this pipeline's own.
package modelport

import (
	"context"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
)

// Flags carries the per-call generation parameters.
type Flags struct {
	Extended bool
	Method   domain.PromptMethod
}

// Port wraps a single stateful Generate operation, safe to call
// concurrently from many scheduler workers.
type Port struct {
	client         *genai.Client
	modelName      string
	requestTimeout time.Duration
}

// New constructs a Port against the given model name. Credentials come from
// credentialPath when it is set, otherwise from the client library's
// default credential lookup.
func New(ctx context.Context, modelName, credentialPath string, requestTimeout time.Duration) (*Port, error) {
	var opts []option.ClientOption
	if credentialPath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialPath))
	}
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, apierr.Auth("genai.client", err)
	}
	return &Port{client: client, modelName: modelName, requestTimeout: requestTimeout}, nil
}

func (p *Port) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// Generate produces SRT text for one chunk×language×flags(×method)
// combination from a gs:// URI. The returned text is opaque to
// this port; downstream parsing happens in internal/merger and
// internal/validator.
func (p *Port) Generate(ctx context.Context, chunkRemoteURI, language string, flags Flags) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	model := p.client.GenerativeModel(p.modelName)
	model.SetTemperature(0.2)

	prompt := buildPrompt(language, flags)

	resp, err := model.GenerateContent(
		ctx,
		genai.FileData{MIMEType: "video/mp4", URI: chunkRemoteURI},
		genai.Text(prompt),
	)
	if err != nil {
		return "", classifyGenerateError(chunkRemoteURI, err)
	}

	text, err := extractText(resp)
	if err != nil {
		return "", apierr.Validation(chunkRemoteURI, err)
	}
	return text, nil
}

// buildPrompt renders the per-language, per-flag instruction text. hin gets
// two independent prompt variants: a direct-Hindi pass and a
// translate-then-render pass, selected by flags.Method.
func buildPrompt(language string, flags Flags) string {
	var b strings.Builder
	b.WriteString("Transcribe the spoken audio in this video clip and produce subtitles in SRT format.\n")
	b.WriteString("Use sequential numbering starting at 1, timestamps in HH:MM:SS,mmm --> HH:MM:SS,mmm format, relative to the start of this clip.\n")

	switch language {
	case "hin":
		switch flags.Method {
		case domain.MethodTranslate:
			b.WriteString("First transcribe in the original language, then translate each line into Hindi (Devanagari script). Output only the final Hindi SRT.\n")
		default:
			b.WriteString("Transcribe directly into Hindi (Devanagari script) without an intermediate translation step.\n")
		}
	case "ben":
		b.WriteString("Produce subtitles in Bengali (Bangla script).\n")
	default:
		b.WriteString("Produce subtitles in English.\n")
	}

	if flags.Extended {
		b.WriteString("Include non-speech audio cues relevant to a deaf/hard-of-hearing viewer in square brackets, e.g. [door slams], [tense music].\n")
	}

	b.WriteString("Do not include any text before or after the SRT content.\n")
	return b.String()
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errEmptyResponse
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", errEmptyResponse
	}
	var b strings.Builder
	for _, part := range cand.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", errEmptyResponse
	}
	return b.String(), nil
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

var errEmptyResponse = simpleErr("model returned no text content")

// classifyGenerateError maps a raw genai/gRPC error onto the closed set of
// model errors: AuthError, QuotaError, SafetyBlocked, TransientModelError,
// ValidationError. The gRPC status code carried by the error, when present,
// takes priority over the substring fallback, the way the teacher's
// gcp/video.go classifies GCS/Gemini call failures.
func classifyGenerateError(identifier string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.PermissionDenied, codes.Unauthenticated:
			return apierr.Auth(identifier, err)
		case codes.ResourceExhausted:
			return apierr.Quota(identifier, err)
		case codes.InvalidArgument:
			return apierr.Validation(identifier, err)
		case codes.Unavailable, codes.DeadlineExceeded, codes.Internal:
			return apierr.TransientModel(identifier, err)
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission"), strings.Contains(msg, "unauthenticated"), strings.Contains(msg, "credential"):
		return apierr.Auth(identifier, err)
	case strings.Contains(msg, "quota"), strings.Contains(msg, "resource exhausted"), strings.Contains(msg, "rate limit"):
		return apierr.Quota(identifier, err)
	case strings.Contains(msg, "safety"), strings.Contains(msg, "blocked"):
		return apierr.SafetyBlocked(identifier, err)
	case strings.Contains(msg, "invalid argument"), strings.Contains(msg, "invalid"):
		return apierr.Validation(identifier, err)
	case strings.Contains(msg, "unavailable"), strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline"), strings.Contains(msg, "internal"):
		return apierr.TransientModel(identifier, err)
	default:
		return apierr.TransientModel(identifier, err)
	}
}
