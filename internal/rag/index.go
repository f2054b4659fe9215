package rag

import (
	"bufio"
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/haasonsaas/localflow/internal/localflowerr"
	"github.com/haasonsaas/localflow/internal/workerpool"
)

// chunkRow is one line of index.jsonl.
type chunkRow struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	MTime      float64   `json:"mtime"`
	ChunkIndex int       `json:"chunk_index"`
	Snippet    string    `json:"snippet"`
	Embedding  []float64 `json:"embedding"`
}

// walk invokes visit for every file under roots whose name passes filter,
// skipping ignored directories, stopping once maxFiles files have been
// visited.
func (s *Service) walk(roots []string, maxFiles int, filter func(path string) bool, visit func(path string)) {
	count := 0
	for _, root := range roots {
		if count >= maxFiles {
			return
		}
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil //nolint:nilerr // best-effort walk; unreadable entries are skipped
			}
			if count >= maxFiles {
				return filepath.SkipAll
			}
			if d.IsDir() {
				if d.Name() != filepath.Base(root) && s.ignoredDirs[strings.ToLower(d.Name())] {
					return filepath.SkipDir
				}
				return nil
			}
			if filter != nil && !filter(path) {
				return nil
			}
			visit(normPath(path))
			count++
			return nil
		})
	}
}

func (s *Service) iterTextFiles(roots []string, maxFiles int, visit func(path string)) {
	s.walk(roots, maxFiles, func(path string) bool {
		return s.allowedExt[strings.ToLower(filepath.Ext(path))]
	}, visit)
}

func (s *Service) iterAllFiles(roots []string, maxFiles int, visit func(path string)) {
	s.walk(roots, maxFiles, nil, visit)
}

func readTextFile(path string, maxBytes int64) string {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return ""
	}
	if info.Size() > maxBytes {
		return ""
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.ToValidUTF8(string(raw), "")
}

func (s *Service) chunkText(text string) []string {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}
	if len(t) <= s.chunkSize {
		return []string{t}
	}
	var out []string
	step := s.chunkSize - s.chunkOverlap
	if step <= 0 {
		step = s.chunkSize
	}
	for i := 0; i < len(t); i += step {
		end := i + s.chunkSize
		if end > len(t) {
			end = len(t)
		}
		if chunk := strings.TrimSpace(t[i:end]); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(t) {
			break
		}
	}
	return out
}

// RebuildResult is what RebuildIndex returns, echoing Status for convenience.
type RebuildResult struct {
	Status
}

// RebuildIndex walks the requested (or, if empty, every approved) root,
// chunks and embeds every allow-listed text file, and atomically replaces
// index.jsonl and index_meta.json.
func (s *Service) RebuildIndex(roots []string, maxFiles int) (*RebuildResult, error) {
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}

	s.mu.Lock()
	approved := s.readPermissions()
	s.mu.Unlock()

	var rootsToUse []string
	if len(roots) > 0 {
		wanted := make([]string, len(roots))
		for i, r := range roots {
			wanted[i] = normPath(r)
		}
		approvedSet := make(map[string]bool, len(approved))
		for _, a := range approved {
			approvedSet[a] = true
		}
		for _, w := range wanted {
			if !approvedSet[w] {
				return nil, localflowerr.InvalidInput("root is not approved: %s", w)
			}
		}
		rootsToUse = wanted
	} else {
		rootsToUse = approved
	}
	if len(rootsToUse) == 0 {
		return nil, localflowerr.InvalidInput("no approved roots; grant folder permission first")
	}

	var paths []string
	s.iterTextFiles(rootsToUse, maxFiles, func(path string) {
		paths = append(paths, path)
	})

	rows, filesIndexed, chunksIndexed := s.indexFiles(paths)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeIndexAtomic(s.indexPath(), rows); err != nil {
		return nil, err
	}

	meta := indexMeta{
		Roots:         rootsToUse,
		FilesIndexed:  filesIndexed,
		ChunksIndexed: chunksIndexed,
		IndexedAt:     utcNow(),
	}
	if err := writeJSONAtomic(s.metaPath(), meta); err != nil {
		return nil, err
	}

	return &RebuildResult{Status: s.statusLocked(meta)}, nil
}

// filePathItem pairs a candidate path with its position in the walk order,
// so concurrent workers can write their per-file rows into a fixed slot
// without contending with each other.
type filePathItem struct {
	idx  int
	path string
}

// indexFiles reads, chunks, and embeds each path with bounded concurrency
// via workerpool.ParallelForEach, then reassembles the rows in walk order.
func (s *Service) indexFiles(paths []string) ([]chunkRow, int, int) {
	items := make([]filePathItem, len(paths))
	for i, p := range paths {
		items[i] = filePathItem{idx: i, path: p}
	}

	perFile := make([][]chunkRow, len(paths))
	_ = workerpool.ParallelForEach(context.Background(), items, s.indexWorkers, func(item filePathItem) error {
		text := readTextFile(item.path, maxReadBytes)
		chunks := s.chunkText(text)
		if len(chunks) == 0 {
			return nil
		}
		mtime := float64(0)
		if info, err := os.Stat(item.path); err == nil {
			mtime = float64(info.ModTime().UnixNano()) / 1e9
		}
		fileRows := make([]chunkRow, 0, len(chunks))
		for idx, chunk := range chunks {
			snippet := chunk
			if len(snippet) > snippetChars {
				snippet = snippet[:snippetChars]
			}
			fileRows = append(fileRows, chunkRow{
				ID:         item.path + "::" + itoa(idx),
				Path:       item.path,
				MTime:      mtime,
				ChunkIndex: idx,
				Snippet:    snippet,
				Embedding:  s.embed(chunk),
			})
		}
		perFile[item.idx] = fileRows
		return nil
	})

	var rows []chunkRow
	filesIndexed := 0
	chunksIndexed := 0
	for _, fileRows := range perFile {
		if len(fileRows) == 0 {
			continue
		}
		filesIndexed++
		chunksIndexed += len(fileRows)
		rows = append(rows, fileRows...)
	}
	return rows, filesIndexed, chunksIndexed
}

func writeIndexAtomic(path string, rows []chunkRow) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return localflowerr.Internal("rag: create index tmp file: %v", err)
	}
	w := bufio.NewWriter(f)
	for _, row := range rows {
		raw, err := json.Marshal(row)
		if err != nil {
			_ = f.Close()
			return localflowerr.Internal("rag: marshal index row: %v", err)
		}
		if _, err := w.Write(raw); err != nil {
			_ = f.Close()
			return localflowerr.Internal("rag: write index row: %v", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return localflowerr.Internal("rag: write index row: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return localflowerr.Internal("rag: flush index: %v", err)
	}
	if err := f.Close(); err != nil {
		return localflowerr.Internal("rag: close index tmp file: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return localflowerr.Internal("rag: rename index into place: %v", err)
	}
	return nil
}

func (s *Service) loadRows() []chunkRow {
	f, err := os.Open(s.indexPath())
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []chunkRow
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var row chunkRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Status reports the current permission set and last rebuild summary.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	var meta indexMeta
	if raw, err := os.ReadFile(s.metaPath()); err == nil {
		_ = json.Unmarshal(raw, &meta)
	}
	return s.statusLocked(meta)
}

func (s *Service) statusLocked(meta indexMeta) Status {
	_, err := os.Stat(s.indexPath())
	return Status{
		ApprovedRoots: s.readPermissions(),
		IndexExists:   err == nil,
		IndexMeta:     meta,
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// resolveSearchRoots validates an explicit roots filter against the approved
// set (every requested root must be under some approved root) and falls
// back to the full approved set when none is given.
func (s *Service) resolveSearchRoots(roots []string) ([]string, error) {
	s.mu.Lock()
	approved := s.readPermissions()
	s.mu.Unlock()

	if len(roots) == 0 {
		return approved, nil
	}
	filtered := make([]string, len(roots))
	for i, r := range roots {
		p := normPath(r)
		ok := false
		for _, a := range approved {
			if isUnderRoot(p, a) {
				ok = true
				break
			}
		}
		if !ok {
			return nil, localflowerr.InvalidInput("root is not approved: %s", p)
		}
		filtered[i] = p
	}
	return filtered, nil
}

// Search embeds q and ranks indexed chunks under the requested-or-approved
// roots by cosine similarity, discarding non-positive scores.
func (s *Service) Search(q string, topK int, roots []string) ([]Hit, error) {
	query := strings.TrimSpace(q)
	if query == "" {
		return nil, nil
	}
	filtered, err := s.resolveSearchRoots(roots)
	if err != nil {
		return nil, err
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	rows := s.loadRows()
	if len(rows) == 0 {
		return nil, nil
	}

	qvec := s.embed(query)
	var scored []Hit
	for _, row := range rows {
		if row.Path == "" {
			continue
		}
		if !anyUnderRoot(row.Path, filtered) {
			continue
		}
		score := dot(qvec, row.Embedding)
		if score <= 0 {
			continue
		}
		scored = append(scored, Hit{Path: row.Path, Score: score, Snippet: row.Snippet})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	return clampHits(scored, topK, 12), nil
}

func anyUnderRoot(path string, roots []string) bool {
	for _, r := range roots {
		if isUnderRoot(path, r) {
			return true
		}
	}
	return false
}

func clampHits(hits []Hit, topK, max int) []Hit {
	if topK <= 0 {
		topK = 1
	}
	if topK > max {
		topK = max
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}
