package canon

import "testing"

func TestMarshalSortsKeysAtEveryDepth(t *testing.T) {
	v := map[string]any{
		"b": 1,
		"a": map[string]any{"z": 1, "y": 2},
	}
	got, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"a":{"y":2,"z":1},"b":1}`
	if string(got) != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMarshalIsOrderIndependent(t *testing.T) {
	a, err := Marshal(map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatalf("Marshal a: %v", err)
	}
	b, err := Marshal(map[string]any{"y": 2, "x": 1})
	if err != nil {
		t.Fatalf("Marshal b: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected identical canonical bytes, got %s vs %s", a, b)
	}
}

func TestMarshalNumberShortestForm(t *testing.T) {
	got, err := Marshal(map[string]any{"n": 3.0})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != `{"n":3}` {
		t.Fatalf("got %s, want integer-form 3", got)
	}
}

func TestHashIsDeterministicAcrossKeyOrder(t *testing.T) {
	h1, err := Hash(map[string]any{"a": 1, "b": 2})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := Hash(map[string]any{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected equal hashes, got %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("expected 64-char hex sha256, got %d chars", len(h1))
	}
}

func TestHashTextNoCanonicalisation(t *testing.T) {
	h1 := HashText(`{"b":1,"a":2}`)
	h2 := HashText(`{"a":2,"b":1}`)
	if h1 == h2 {
		t.Fatalf("HashText must not canonicalise JSON text, got equal hashes for differently-ordered text")
	}
}

func TestCanonicalizeJSONRejectsMalformed(t *testing.T) {
	if _, err := CanonicalizeJSON([]byte(`{not json`)); err == nil {
		t.Fatal("expected error decoding malformed JSON")
	}
}
