package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

func newTestStore(t *testing.T, cap int64) (*Store, *store.Store) {
	t.Helper()
	s, err := store.Init(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(s, cap), s
}

func req(id string, source types.ArtifactSource, ref string) PutRequest {
	return PutRequest{
		ID:        id,
		TaskID:    "task_1",
		Source:    source,
		Ref:       ref,
		Actor:     "human:alice",
		CreatedAt: types.NewTimestamp(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestPutFileCopiesPayload(t *testing.T) {
	a, s := newTestStore(t, 1024)

	src := filepath.Join(t.TempDir(), "report.txt")
	if err := os.WriteFile(src, []byte("findings"), 0600); err != nil {
		t.Fatal(err)
	}

	art, err := a.Put(req("art_1", types.SourceFile, src))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if art.PayloadRef != "artifacts/payload/art_1.txt" {
		t.Errorf("PayloadRef = %q", art.PayloadRef)
	}
	data, err := os.ReadFile(filepath.Join(s.Root(), filepath.FromSlash(art.PayloadRef)))
	if err != nil || string(data) != "findings" {
		t.Errorf("payload copy = (%q, %v)", data, err)
	}
	if !a.PayloadExists(art) {
		t.Error("PayloadExists = false after Put")
	}

	// Source file untouched.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("source file should remain: %v", err)
	}
}

func TestPutURLStoresReference(t *testing.T) {
	a, _ := newTestStore(t, 1024)

	art, err := a.Put(req("art_2", types.SourceURL, "https://example.com/design"))
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if art.PayloadRef != "https://example.com/design" {
		t.Errorf("PayloadRef = %q, want the URL verbatim", art.PayloadRef)
	}
	if !a.PayloadExists(art) {
		t.Error("URL artifacts always exist")
	}
}

func TestPutEnforcesSizeCap(t *testing.T) {
	a, _ := newTestStore(t, 4)

	src := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(src, []byte("way too large"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := a.Put(req("art_3", types.SourceFile, src))
	if !types.IsCode(err, types.CodePayloadTooLarge) {
		t.Errorf("got %v, want PAYLOAD_TOO_LARGE", err)
	}
}

func TestPutMissingFile(t *testing.T) {
	a, _ := newTestStore(t, 1024)
	_, err := a.Put(req("art_4", types.SourceFile, filepath.Join(t.TempDir(), "absent.txt")))
	if !types.IsCode(err, types.CodePathNotFound) {
		t.Errorf("got %v, want PATH_NOT_FOUND", err)
	}
}

func TestGetRoundtrip(t *testing.T) {
	a, _ := newTestStore(t, 1024)

	in := req("art_5", types.SourceReference, "RFC-42")
	in.Title = "design ref"
	in.Sensitive = true
	in.Role = "review"
	if _, err := a.Put(in); err != nil {
		t.Fatal(err)
	}

	art, err := a.Get("art_5")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if art.Title != "design ref" || !art.Sensitive || art.Role != "review" {
		t.Errorf("roundtrip lost fields: %+v", art)
	}

	if _, err := a.Get("art_nope"); !types.IsCode(err, types.CodeNotFound) {
		t.Errorf("got %v, want NOT_FOUND", err)
	}
}

func TestUnknownSourceRejected(t *testing.T) {
	a, _ := newTestStore(t, 1024)
	_, err := a.Put(req("art_6", types.ArtifactSource("carrier-pigeon"), "x"))
	if !types.IsCode(err, types.CodeInvalidInput) {
		t.Errorf("got %v, want INVALID_INPUT", err)
	}
}
