package rag

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindFilesMatchesByToken(t *testing.T) {
	svc := newTestService(t)
	root := t.TempDir()
	wanted := filepath.Join(root, "quarterly_budget_report.xlsx")
	if err := os.WriteFile(wanted, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := svc.GrantPermission(root); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	hits, err := svc.FindFiles("find the quarterly budget report", 5, nil, 1000)
	if err != nil {
		t.Fatalf("FindFiles: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected at least one hit")
	}
	if normPath(hits[0].Path) != normPath(wanted) {
		t.Errorf("top hit = %s, want %s", hits[0].Path, wanted)
	}
}

func TestFindFilesImageIntentBoostsMediaFiles(t *testing.T) {
	svc := newTestService(t)
	root := t.TempDir()
	photo := filepath.Join(root, "vacation.png")
	doc := filepath.Join(root, "vacation.txt")
	for _, p := range []string{photo, doc} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if _, err := svc.GrantPermission(root); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	hits, err := svc.FindFiles("find vacation photos", 5, nil, 1000)
	if err != nil {
		t.Fatalf("FindFiles: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits")
	}
	if normPath(hits[0].Path) != normPath(photo) {
		t.Errorf("top hit = %s, want the image to rank first", hits[0].Path)
	}
}

func TestFindFilesEmptyQuery(t *testing.T) {
	svc := newTestService(t)
	hits, err := svc.FindFiles("   ", 5, nil, 1000)
	if err != nil || hits != nil {
		t.Errorf("FindFiles(blank) = %v, %v; want nil, nil", hits, err)
	}
}

func TestFindFilesRejectsUnapprovedRootFilter(t *testing.T) {
	svc := newTestService(t)
	root := t.TempDir()
	if _, err := svc.GrantPermission(root); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if _, err := svc.FindFiles("find report", 5, []string{t.TempDir()}, 1000); err == nil {
		t.Error("expected error for a root outside the approved set")
	}
}

func TestExtractDriveHints(t *testing.T) {
	hints := ExtractDriveHints("find my photos on D: and also d: again")
	if len(hints) != 1 || hints[0] != `D:\` {
		t.Errorf("extractDriveHints = %v, want [D:\\]", hints)
	}
}

func TestCompact(t *testing.T) {
	if got := compact("My-Report V2.txt"); got != "myreportv2txt" {
		t.Errorf("compact = %q, want %q", got, "myreportv2txt")
	}
}
