// Package prompts loads the system and repair prompt text from the prompt
// pack directory at startup (C3, §4.3). The load is read-only; a failed
// startup load is fatal. Watcher (watch.go) re-runs Load when the files
// change.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	systemPromptFile = "system.txt"
	repairPromptFile = "repair.txt"
)

// Pack holds the two prompt texts the LLM provider needs for every turn.
type Pack struct {
	System string
	Repair string
}

// Load reads system.txt and repair.txt from dir. Both files are required;
// a missing or empty file is a startup error, not a runtime fallback.
func Load(dir string) (*Pack, error) {
	system, err := readNonEmpty(filepath.Join(dir, systemPromptFile))
	if err != nil {
		return nil, fmt.Errorf("prompts: load system prompt: %w", err)
	}
	repair, err := readNonEmpty(filepath.Join(dir, repairPromptFile))
	if err != nil {
		return nil, fmt.Errorf("prompts: load repair prompt: %w", err)
	}
	return &Pack{System: system, Repair: repair}, nil
}

func readNonEmpty(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", fmt.Errorf("%s is empty", path)
	}
	return string(b), nil
}
