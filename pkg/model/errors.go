package model

import "github.com/m-mizutani/goerr/v2"

var (
	ErrTagInvalidInput          = goerr.NewTag("invalid_input")
	ErrTagPolicyDenied          = goerr.NewTag("policy_denied")
	ErrTagUnauthorized          = goerr.NewTag("unauthorized")
	ErrTagStoreUnavailable      = goerr.NewTag("store_unavailable")
	ErrTagEmbeddingUnavailable  = goerr.NewTag("embedding_unavailable")
	ErrTagGenerationUnavailable = goerr.NewTag("generation_unavailable")
	ErrTagGenerationRejected    = goerr.NewTag("generation_rejected")
	ErrTagIndexUnavailable      = goerr.NewTag("index_unavailable")
	ErrTagEmitFailed            = goerr.NewTag("emit_failed")
	ErrTagNotFound              = goerr.NewTag("not_found")
)

// errorCodeTags is ordered by precedence. goerr does not export its tag type,
// so the slice type is inferred through tagList.
var errorCodeTags = tagList(
	ErrTagInvalidInput,
	ErrTagPolicyDenied,
	ErrTagUnauthorized,
	ErrTagStoreUnavailable,
	ErrTagEmbeddingUnavailable,
	ErrTagGenerationRejected,
	ErrTagGenerationUnavailable,
	ErrTagIndexUnavailable,
	ErrTagEmitFailed,
	ErrTagNotFound,
)

func tagList[T any](tags ...T) []T { return tags }

// ErrorCode returns a client-safe code for err. Unknown errors map to "internal".
func ErrorCode(err error) string {
	for _, tag := range errorCodeTags {
		if goerr.HasTag(err, tag) {
			return tag.String()
		}
	}
	return "internal"
}
