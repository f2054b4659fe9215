package rag

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(Config{StoreDir: t.TempDir()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

func TestNewClampsDefaults(t *testing.T) {
	svc, err := New(Config{StoreDir: t.TempDir(), ChunkSize: 10, ChunkOverlap: 5000, EmbeddingDim: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.chunkSize != minChunkSize {
		t.Errorf("chunkSize = %d, want %d", svc.chunkSize, minChunkSize)
	}
	if svc.chunkOverlap != svc.chunkSize/2 {
		t.Errorf("chunkOverlap = %d, want %d", svc.chunkOverlap, svc.chunkSize/2)
	}
	if svc.embeddingDim != minEmbeddingDim {
		t.Errorf("embeddingDim = %d, want %d", svc.embeddingDim, minEmbeddingDim)
	}
}

func TestGrantListRevokePermission(t *testing.T) {
	svc := newTestService(t)
	dir := t.TempDir()

	if _, err := svc.GrantPermission(dir); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if _, err := svc.GrantPermission(dir); err != nil {
		t.Fatalf("GrantPermission (idempotent): %v", err)
	}

	roots := svc.ListPermissions()
	if len(roots) != 1 {
		t.Fatalf("ListPermissions = %v, want exactly 1 root", roots)
	}

	if !svc.IsPathAllowed(filepath.Join(dir, "child.txt")) {
		t.Error("expected child of granted root to be allowed")
	}
	if svc.IsPathAllowed(t.TempDir()) {
		t.Error("expected unrelated path to be disallowed")
	}

	kept, err := svc.RevokePermission(dir)
	if err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	if len(kept) != 0 {
		t.Fatalf("kept = %v, want empty", kept)
	}
	if svc.IsPathAllowed(dir) {
		t.Error("expected root to be disallowed after revoke")
	}
}

func TestGrantPermissionRejectsNonDirectory(t *testing.T) {
	svc := newTestService(t)
	file := filepath.Join(t.TempDir(), "not-a-dir.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := svc.GrantPermission(file); err == nil {
		t.Error("expected error granting a non-directory path")
	}
}

func TestSetPermissionsReplacesWholesale(t *testing.T) {
	svc := newTestService(t)
	a, b := t.TempDir(), t.TempDir()

	if _, err := svc.GrantPermission(a); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if _, err := svc.SetPermissions([]string{b}); err != nil {
		t.Fatalf("SetPermissions: %v", err)
	}

	roots := svc.ListPermissions()
	if len(roots) != 1 || normPath(roots[0]) != normPath(b) {
		t.Fatalf("roots = %v, want only %s", roots, b)
	}
}

func TestChunkTextSplitsWithOverlap(t *testing.T) {
	svc, err := New(Config{StoreDir: t.TempDir(), ChunkSize: 400, ChunkOverlap: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text := make([]byte, 1000)
	for i := range text {
		text[i] = byte('a' + i%26)
	}
	chunks := svc.chunkText(string(text))
	if len(chunks) < 3 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if len(c) > svc.chunkSize {
			t.Errorf("chunk length %d exceeds chunk size %d", len(c), svc.chunkSize)
		}
	}
}

func TestChunkTextEmpty(t *testing.T) {
	svc := newTestService(t)
	if chunks := svc.chunkText("   "); chunks != nil {
		t.Errorf("chunkText(whitespace) = %v, want nil", chunks)
	}
}

func TestEmbedIsNormalizedAndDeterministic(t *testing.T) {
	svc := newTestService(t)
	v1 := svc.embed("hello world hello")
	v2 := svc.embed("hello world hello")
	if len(v1) != svc.embeddingDim {
		t.Fatalf("embedding dim = %d, want %d", len(v1), svc.embeddingDim)
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embed is not deterministic at index %d: %v != %v", i, v1[i], v2[i])
		}
	}
	norm := dot(v1, v1)
	if norm < 0.999 || norm > 1.001 {
		t.Errorf("||v||^2 = %v, want ~1", norm)
	}
}

func TestRebuildIndexRejectsUnapprovedRoot(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.RebuildIndex([]string{t.TempDir()}, 100); err == nil {
		t.Error("expected error rebuilding against an unapproved root")
	}
}

func TestRebuildIndexAndSearch(t *testing.T) {
	svc := newTestService(t)
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "notes.md"), []byte("localflow retrieval index design notes"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "photo.png"), []byte("binary"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := svc.GrantPermission(root); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	result, err := svc.RebuildIndex(nil, 100)
	if err != nil {
		t.Fatalf("RebuildIndex: %v", err)
	}
	if result.IndexMeta.FilesIndexed != 1 {
		t.Fatalf("FilesIndexed = %d, want 1 (media file must be skipped)", result.IndexMeta.FilesIndexed)
	}
	if !result.IndexExists {
		t.Error("expected index to exist after rebuild")
	}

	hits, err := svc.Search("retrieval index", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("Search hits = %d, want 1", len(hits))
	}
	if normPath(hits[0].Path) != normPath(filepath.Join(root, "notes.md")) {
		t.Errorf("hit path = %s, want notes.md", hits[0].Path)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	svc := newTestService(t)
	hits, err := svc.Search("   ", 5, nil)
	if err != nil || hits != nil {
		t.Errorf("Search(blank) = %v, %v; want nil, nil", hits, err)
	}
}
