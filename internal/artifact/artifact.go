// Package artifact stores attached payloads. File payloads are copied into
// artifacts/payload/ via atomic rename; URL-class sources are stored by
// reference only. Every artifact has a sidecar metadata record under
// artifacts/meta/. Payloads are shared by reference and never garbage
// collected on archive.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Store manages artifact payloads and metadata.
type Store struct {
	store    *store.Store
	maxBytes int64
}

// New creates an artifact store with the given payload size cap.
func New(s *store.Store, maxBytes int64) *Store {
	return &Store{store: s, maxBytes: maxBytes}
}

// PutRequest describes one attachment.
type PutRequest struct {
	ID        string // pre-generated art_ id
	TaskID    string
	Source    types.ArtifactSource
	Ref       string // file path for SourceFile, URL/reference string otherwise
	Title     string
	Summary   string
	Sensitive bool
	Role      string
	Actor     string
	CreatedAt types.Timestamp
}

// Put stores the payload (if any) and writes the metadata sidecar. For file
// sources, Ref must point at a readable file no larger than the cap.
func (a *Store) Put(req PutRequest) (*types.Artifact, error) {
	if !req.Source.IsValid() {
		return nil, types.Errorf(types.CodeInvalidInput, "unknown artifact source %q", req.Source)
	}

	payloadRef := req.Ref
	if req.Source == types.SourceFile {
		copied, err := a.copyPayload(req.ID, req.Ref)
		if err != nil {
			return nil, err
		}
		payloadRef = copied
	}

	art := &types.Artifact{
		ID:         req.ID,
		TaskID:     req.TaskID,
		Source:     req.Source,
		PayloadRef: payloadRef,
		Title:      req.Title,
		Summary:    req.Summary,
		Sensitive:  req.Sensitive,
		Role:       req.Role,
		CreatedAt:  req.CreatedAt,
		Actor:      req.Actor,
	}
	if err := store.WriteJSONAtomic(a.store.ArtifactMetaPath(req.ID), art); err != nil {
		return nil, fmt.Errorf("writing artifact meta: %w", err)
	}
	return art, nil
}

// copyPayload copies src into the payload dir under the artifact id,
// preserving the extension, and returns the store-relative payload ref.
func (a *Store) copyPayload(id, src string) (string, error) {
	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		return "", types.Errorf(types.CodePathNotFound, "payload file %s does not exist", src)
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return "", types.Errorf(types.CodeInvalidInput, "payload %s is a directory", src)
	}
	if a.maxBytes > 0 && info.Size() > a.maxBytes {
		return "", types.Errorf(types.CodePayloadTooLarge,
			"payload %s is %d bytes (cap %d)", src, info.Size(), a.maxBytes)
	}

	name := id + filepath.Ext(src)
	dst := filepath.Join(a.store.ArtifactPayloadDir(), name)

	in, err := os.Open(src) // #nosec G304 - user-supplied attach path
	if err != nil {
		return "", fmt.Errorf("opening payload: %w", err)
	}
	defer in.Close()

	data, err := io.ReadAll(io.LimitReader(in, a.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}
	if a.maxBytes > 0 && int64(len(data)) > a.maxBytes {
		return "", types.Errorf(types.CodePayloadTooLarge, "payload %s exceeds cap %d", src, a.maxBytes)
	}

	if err := store.WriteFileAtomic(dst, data, 0600); err != nil {
		return "", fmt.Errorf("storing payload: %w", err)
	}
	return a.store.Rel(dst), nil
}

// Get loads an artifact's metadata.
func (a *Store) Get(id string) (*types.Artifact, error) {
	var art types.Artifact
	err := store.ReadJSON(a.store.ArtifactMetaPath(id), &art)
	if os.IsNotExist(err) {
		return nil, types.Errorf(types.CodeNotFound, "no artifact %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &art, nil
}

// List returns all artifact metadata records.
func (a *Store) List() ([]*types.Artifact, error) {
	dir := filepath.Dir(a.store.ArtifactMetaPath("x"))
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []*types.Artifact
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var art types.Artifact
		if err := store.ReadJSON(filepath.Join(dir, e.Name()), &art); err != nil {
			continue
		}
		out = append(out, &art)
	}
	return out, nil
}

// PayloadExists reports whether a store-relative payload ref resolves to a
// file. URL-class refs always exist.
func (a *Store) PayloadExists(art *types.Artifact) bool {
	if art.Source != types.SourceFile {
		return true
	}
	_, err := os.Stat(filepath.Join(a.store.Root(), filepath.FromSlash(art.PayloadRef)))
	return err == nil
}
