package retrycore

import (
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

// retryableGRPCCodes mirrors the teacher's gcp/video.go retry-annotation
// check: only these three codes represent a transient upstream condition
// on the Gemini/GCS gRPC surface.
var retryableGRPCCodes = map[codes.Code]bool{
	codes.Unavailable:       true,
	codes.ResourceExhausted: true,
	codes.DeadlineExceeded:  true,
}

// retryableKinds holds the kinds classified as retryable: network, store,
// quota, and transient-model failures; everything else is not.
var retryableKinds = map[apierr.Kind]bool{
	apierr.KindNetwork:        true,
	apierr.KindStore:          true,
	apierr.KindTransientModel: true,
	apierr.KindQuota:          true,
}

var nonRetryableKinds = map[apierr.Kind]bool{
	apierr.KindAuth:           true,
	apierr.KindValidation:     true,
	apierr.KindSafetyBlocked:  true,
	apierr.KindConfiguration:  true,
	apierr.KindMergeInvariant: true,
}

// retryablePatterns is the string-pattern fallback used when an error
// carries no apierr.Kind tag.
var retryablePatterns = []string{
	"timeout", "connection", "temporary", "rate limit", "throttle",
	"busy", "unavailable", "502", "503", "504",
}

// Classify reports whether err should be retried: tagged kinds take
// priority, then the gRPC status code the wrapped error carries (if any),
// then a substring fallback over the error text.
func Classify(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := asAPIError(err); ok {
		if nonRetryableKinds[ae.Kind] {
			return false
		}
		if retryableKinds[ae.Kind] {
			return true
		}
	}
	if st, ok := status.FromError(err); ok {
		return retryableGRPCCodes[st.Code()]
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

func asAPIError(err error) (*apierr.Error, bool) {
	for err != nil {
		if ae, ok := err.(*apierr.Error); ok {
			return ae, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
