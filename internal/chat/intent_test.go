package chat

import "testing"

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name    string
		message string
		force   bool
		want    intent
	}{
		{"readme", "can you open the readme", false, intentFileFind},
		{"extension", "where is my budget.xlsx", false, intentFileFind},
		{"find-about", "find me info about the merger", false, intentFileFind},
		{"find-folder-words", "search for the photo folder", false, intentFileFind},
		{"retrieval-adjacent", "search the onboarding pdf", false, intentRetrieval},
		{"forced", "what's the weather", true, intentFileFind},
		{"none", "write a short poem about the sea", false, intentNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyIntent(tc.message, tc.force)
			if got != tc.want {
				t.Errorf("classifyIntent(%q) = %v, want %v", tc.message, got, tc.want)
			}
		})
	}
}

func TestDetectFolderHint(t *testing.T) {
	hint, segment, ok := detectFolderHint("find my latest downloads please")
	if !ok || hint != "downloads" || segment != "downloads" {
		t.Errorf("detectFolderHint = %q, %q, %v", hint, segment, ok)
	}
	if _, _, ok := detectFolderHint("write me an email"); ok {
		t.Error("expected no folder hint")
	}
}
