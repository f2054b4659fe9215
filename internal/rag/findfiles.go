package rag

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var queryStopwords = setOf(
	"find", "search", "locate", "where", "is", "are", "the", "a", "an",
	"of", "for", "in", "on", "to", "my", "local", "pc", "computer",
	"disk", "drive", "file", "files", "folder", "folders", "directory",
	"document", "documents",
)

var (
	driveHintRE   = regexp.MustCompile(`\b([a-zA-Z]):`)
	nonAlphaNumRE = regexp.MustCompile(`[^a-z0-9]+`)
)

// ExtractDriveHints pulls distinct Windows drive-letter mentions ("D:") out
// of a query, in first-seen order.
func ExtractDriveHints(query string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range driveHintRE.FindAllStringSubmatch(query, -1) {
		drive := strings.ToUpper(m[1]) + ":\\"
		if !seen[drive] {
			seen[drive] = true
			out = append(out, drive)
		}
	}
	return out
}

// compact strips everything but lowercase letters/digits, so "my-report v2"
// and "myreportv2" compare equal as path substrings.
func compact(s string) string {
	return nonAlphaNumRE.ReplaceAllString(strings.ToLower(s), "")
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var (
	imageIntentWords = []string{"photo", "photos", "picture", "pictures", "image", "images"}
	docIntentWords   = []string{"document", "documents", "pdf", "doc", "docx", "txt"}
	docExtensions    = setOf(".pdf", ".doc", ".docx", ".txt", ".md")
	mediaPathHints   = []string{`\pictures\`, `\photos\`, `\dcim\`}

	strongCoverageThreshold = 0.34
	shortPathBoostLen       = 140
)

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// FindFiles scans the filesystem (not the chunk index) for paths whose name
// or directory components overlap the query's tokens, applying media/
// document/filename/substring boosts. Content search (Search) applies no
// such boosts; it ranks chunks by embedding similarity alone.
func (s *Service) FindFiles(query string, topK int, roots []string, maxFilesScan int) ([]Hit, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	if maxFilesScan <= 0 {
		maxFilesScan = 450_000
	}

	filtered, err := s.resolveSearchRoots(roots)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	if hints := ExtractDriveHints(query); len(hints) > 0 {
		var restricted []string
		for _, r := range filtered {
			rl := strings.ToLower(r)
			for _, h := range hints {
				if strings.HasPrefix(rl, strings.ToLower(h)) {
					restricted = append(restricted, r)
					break
				}
			}
		}
		if len(restricted) == 0 {
			return nil, nil
		}
		filtered = restricted
	}

	qTokenSet := make(map[string]bool)
	for _, t := range tokenize(q) {
		if len(t) >= 3 && !queryStopwords[t] && !isDigits(t) {
			qTokenSet[t] = true
		}
	}
	if len(qTokenSet) == 0 {
		return nil, nil
	}
	qTokens := make([]string, 0, len(qTokenSet))
	for t := range qTokenSet {
		qTokens = append(qTokens, t)
	}
	qCompact := compact(q)
	wantsImages := containsAny(q, imageIntentWords)
	wantsDocs := containsAny(q, docIntentWords)

	var strong, relaxed []Hit
	s.iterAllFiles(filtered, maxFilesScan, func(path string) {
		p := strings.ToLower(path)
		name := strings.ToLower(filepath.Base(path))
		ext := strings.ToLower(filepath.Ext(path))
		pathTokens := make(map[string]bool)
		for _, t := range tokenize(p) {
			pathTokens[t] = true
		}

		overlap := 0
		for t := range qTokenSet {
			if pathTokens[t] {
				overlap++
			}
		}
		compactPath := compact(p)
		compactOverlap := 0
		for _, t := range qTokens {
			ct := compact(t)
			if ct != "" && strings.Contains(compactPath, ct) {
				compactOverlap++
			}
		}
		overlapTotal := overlap + compactOverlap
		if overlapTotal == 0 && qCompact != "" && !strings.Contains(compactPath, qCompact) {
			return
		}
		coverage := float64(overlapTotal) / float64(len(qTokenSet))

		score := float64(overlapTotal)
		if wantsImages && (s.mediaExt[ext] || containsAny(p, mediaPathHints)) {
			score += 2.0
		}
		if wantsDocs && docExtensions[ext] {
			score += 1.5
		}
		nameMatch := strings.Contains(q, name)
		if !nameMatch {
			for t := range qTokenSet {
				if t != "" && strings.Contains(name, t) {
					nameMatch = true
					break
				}
			}
		}
		if nameMatch {
			score += 1.0
		}
		if qCompact != "" && strings.Contains(compactPath, qCompact) {
			score += 1.2
		}
		score += coverage
		if len(path) < shortPathBoostLen {
			score += 0.2
		}

		hit := Hit{Path: path, Score: score, Snippet: "Matched path: " + path}
		if coverage >= strongCoverageThreshold {
			strong = append(strong, hit)
		} else {
			relaxed = append(relaxed, hit)
		}
	})

	sort.Slice(strong, func(i, j int) bool { return strong[i].Score > strong[j].Score })
	if len(strong) > 0 {
		return clampHits(strong, topK, 20), nil
	}
	sort.Slice(relaxed, func(i, j int) bool { return relaxed[i].Score > relaxed[j].Score })
	return clampHits(relaxed, topK, 20), nil
}
