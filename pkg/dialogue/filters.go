package dialogue

import "strings"

// hallucinationPhrases are stock phrases STT models emit on silence or
// background noise, matched case-insensitively as substrings.
var hallucinationPhrases = []string{
	"thank you for calling",
	"how may i help you today",
	"is there anything else i can help you with",
	"end of call",
	"call ended",
	"system message",
	"automated response",
	"have a great day and thank you for calling",
}

var fillerWords = map[string]bool{
	"hmm": true, "um": true, "uh": true, "ah": true, "eh": true, "oh": true,
}

// rejectTranscript reports whether a transcript should be dropped without
// ever reaching the LLM: empty, hallucinated, or too short to act on.
func rejectTranscript(transcript string, minWords int) bool {
	trimmed := strings.TrimSpace(transcript)
	if trimmed == "" {
		return true
	}
	if len(trimmed) < 3 {
		return true
	}
	if isHallucination(trimmed) {
		return true
	}
	if wordCount(trimmed) < minWords {
		return true
	}
	if fillerWords[strings.ToLower(trimmed)] {
		return true
	}
	return false
}

func isHallucination(transcript string) bool {
	lower := strings.ToLower(transcript)
	for _, phrase := range hallucinationPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func endsWithSentencePunctuation(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
