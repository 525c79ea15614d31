package stream

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/tjfontaine/polyglot-chat-core/internal/capability"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/domain"
)

// DowngradeState records which single-shot downgrades a request has used.
// Each flag flips false to true at most once and is carried across
// attempts unchanged.
type DowngradeState struct {
	RetriedMaxTokens      bool
	RetriedSamplingParams bool
	RetriedReasoning      bool
}

// DefaultMaxTokens is assumed when a provider rejects an unset max tokens
// value and the error does not name a limit.
const DefaultMaxTokens = 4096

// minLadderTokens is the floor of the halving step of the ladder.
const minLadderTokens = 256

var limitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:<=|≤|less than or equal to|at most|no more than|up to)\s*(\d[\d,]*)`),
	regexp.MustCompile(`(?i)between\s+\d[\d,]*\s+and\s+(\d[\d,]*)`),
	regexp.MustCompile(`(?i)>\s*(\d[\d,]*)\s*,?\s*which is the maximum`),
	regexp.MustCompile(`(?i)context (?:length|window)(?: is| of)?\s*(\d[\d,]*)\s*tokens`),
	regexp.MustCompile(`(?i)maximum (?:allowed |supported )?(?:value|number of (?:output |completion )?tokens|output tokens|tokens)(?: is| of|:)?\s*(\d[\d,]*)`),
}

// ParseTokenLimits extracts every token limit named in provider error
// text, in pattern order.
func ParseTokenLimits(message string) []int {
	var out []int
	for _, re := range limitPatterns {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
			if err != nil || n <= 0 {
				continue
			}
			out = append(out, n)
		}
	}
	return out
}

// Ladder steps current down: >8192 to 8192, >4096 to 4096, >2048 to 2048,
// >1024 to 1024, otherwise half with a floor of 256.
func Ladder(current int) int {
	switch {
	case current > 8192:
		return 8192
	case current > 4096:
		return 4096
	case current > 2048:
		return 2048
	case current > 1024:
		return 1024
	}
	return max(minLadderTokens, current/2)
}

// DeriveSafeMaxTokens picks the reduced value to retry with. The largest
// limit parsed from the message that is below current wins; otherwise the
// ladder applies. current == 0 means no value was sent. The result is
// always a value the capability cache accepts, and false means no
// downgrade is possible.
func DeriveSafeMaxTokens(message string, current int) (int, bool) {
	best := 0
	for _, n := range ParseTokenLimits(message) {
		if (current == 0 || n < current) && capability.ValidSafeMaxTokens(n) && n > best {
			best = n
		}
	}
	if best > 0 {
		return best, true
	}
	if current == 0 {
		return DefaultMaxTokens, true
	}

	n := Ladder(current)
	for n > 0 && !capability.ValidSafeMaxTokens(n) {
		n--
	}
	if n <= 0 || n >= current {
		return 0, false
	}
	return n, true
}

var (
	maxTokensParams = []string{"max_tokens", "max_completion_tokens", "max_output_tokens", "maxoutputtokens", "num_predict"}
	samplingParams  = []string{"temperature", "top_p"}
	reasoningParams = []string{"reasoning_effort", "reasoning", "thinking", "budget_tokens"}
)

// isMaxTokensError reports a token or context limit, or an unsupported
// parameter error that names a max-tokens field.
func isMaxTokensError(e *domain.APIError) bool {
	switch e.Type {
	case domain.ErrorTypeMaxTokens, domain.ErrorTypeContextLength:
		return true
	case domain.ErrorTypeUnsupportedParam, domain.ErrorTypeInvalidRequest:
		return names(e, maxTokensParams)
	}
	return false
}

func isSamplingError(e *domain.APIError) bool {
	return isParamError(e) && names(e, samplingParams)
}

func isReasoningError(e *domain.APIError) bool {
	return isParamError(e) && names(e, reasoningParams)
}

func isParamError(e *domain.APIError) bool {
	return e.Type == domain.ErrorTypeUnsupportedParam || e.Type == domain.ErrorTypeInvalidRequest
}

func names(e *domain.APIError, params []string) bool {
	param := strings.ToLower(e.Param)
	msg := strings.ToLower(e.Message)
	for _, p := range params {
		if param == p || strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
