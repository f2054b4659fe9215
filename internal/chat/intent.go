package chat

import (
	"regexp"
	"strings"
)

var (
	readmeRE        = regexp.MustCompile(`(?i)\breadme\b`)
	fileExtensionRE = regexp.MustCompile(`(?i)\.(docx?|xlsx?|pptx?|pdf|txt|csv|png|jpe?g|gif|mp4|mov|zip|log|md)\b`)
	findAboutRE     = regexp.MustCompile(`(?i)\b(find|search|locate|lookup)\b.*\b(for|about)\b`)
	findFileWordsRE = regexp.MustCompile(`(?i)\b(find|search|locate|where)\b.*\b(file|files|folder|folders|photo|photos|picture|pictures|document|documents|directory)\b`)

	retrievalAdjacentRE = regexp.MustCompile(`(?i)\b(find|search)\b.*\b(file|document|pdf|folder)\b`)
)

// classifyIntent implements §4.8 step 4: explicit file-find takes priority
// over the narrower retrieval-adjacent class, which itself is a subset of
// messages that also mention local files or folders without the stronger
// file-find phrasing.
func classifyIntent(message string, forceFileSearch bool) intent {
	if forceFileSearch {
		return intentFileFind
	}
	if readmeRE.MatchString(message) || fileExtensionRE.MatchString(message) ||
		findAboutRE.MatchString(message) || findFileWordsRE.MatchString(message) {
		return intentFileFind
	}
	if retrievalAdjacentRE.MatchString(message) {
		return intentRetrieval
	}
	return intentNone
}

type intent int

const (
	intentNone intent = iota
	intentFileFind
	intentRetrieval
)

// folderHints maps a colloquial folder name to the path segment used to
// detect whether some approved root already covers it.
var folderHints = map[string]string{
	"downloads": "downloads",
	"documents": "documents",
	"desktop":   "desktop",
	"pictures":  "pictures",
	"photos":    "pictures",
	"music":     "music",
	"videos":    "videos",
}

// detectFolderHint returns the first named-folder hint mentioned in message,
// in map-declaration order evaluated deterministically over a fixed slice.
func detectFolderHint(message string) (hint, segment string, ok bool) {
	lower := strings.ToLower(message)
	for _, name := range []string{"downloads", "documents", "desktop", "pictures", "photos", "music", "videos"} {
		if strings.Contains(lower, name) {
			return name, folderHints[name], true
		}
	}
	return "", "", false
}
