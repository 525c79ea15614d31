package capability

import (
	"regexp"
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

// reasoningOnlyPattern matches models that reason internally and reject
// sampling parameters.
var reasoningOnlyPattern = regexp.MustCompile(`(^|[/-])(o[1-9])($|[-.])|reasoner|(^|[-/])r1($|[-.])|thinking`)

var nonChatMarkers = []string{
	"rerank",
	"embed",
	"whisper",
	"tts",
	"audio",
	"transcribe",
	"speech",
	"dall-e",
	"image",
	"imagen",
	"moderation",
}

// InferSampling guesses whether a model accepts temperature/top_p from its
// name. It is consulted only when the cache holds no learned value.
func InferSampling(submodel string) domain.TriState {
	m := NormalizeSubmodel(submodel)
	if m == "" {
		return domain.Unknown
	}
	if reasoningOnlyPattern.MatchString(m) || isNonChat(m) {
		return domain.False
	}
	return domain.Unknown
}

// InferReasoning guesses whether a model accepts reasoning/thinking
// parameters from its name.
func InferReasoning(submodel string) domain.TriState {
	m := NormalizeSubmodel(submodel)
	if m == "" {
		return domain.Unknown
	}
	if isNonChat(m) {
		return domain.False
	}
	if reasoningOnlyPattern.MatchString(m) {
		return domain.True
	}
	return domain.Unknown
}

func isNonChat(m string) bool {
	for _, marker := range nonChatMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}
