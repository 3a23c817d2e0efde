package recognition

import "strings"

// WhisperLanguage maps a BCP-47 tag such as "en-US" to the two-letter code
// whisper.cpp expects. "auto" and the empty tag pass through as "auto".
func WhisperLanguage(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if tag == "" || tag == "auto" {
		return "auto"
	}
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	return tag
}
