package rag

// textExtensions is the allow-list considered for content indexing: source,
// markup, config, and plain text. Media files are never chunked — they only
// feed FindFiles' media-intent boost (see mediaExtensions).
func textExtensions() map[string]bool {
	return setOf(
		".txt", ".md", ".rst", ".json", ".csv", ".log",
		".py", ".ts", ".tsx", ".js", ".jsx", ".java", ".go", ".rs",
		".c", ".cpp", ".h", ".hpp", ".cs", ".sql",
		".yaml", ".yml", ".toml", ".ini", ".xml", ".html", ".css",
		".sh", ".ps1", ".bat",
	)
}

func mediaExtensions() map[string]bool {
	return setOf(
		".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp", ".tif", ".tiff", ".heic",
		".mp4", ".mov", ".avi", ".mkv", ".webm",
	)
}

func ignoredDirNames() map[string]bool {
	return setOf(
		".git", ".hg", ".svn",
		"node_modules", ".venv", "venv", "__pycache__",
		".idea", ".vscode", "dist", "build", "target", "coverage",
	)
}

func setOf(items ...string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, it := range items {
		out[it] = true
	}
	return out
}
