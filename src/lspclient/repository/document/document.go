// Package document tracks the documents shown in editors and their versions on the server side.
// Editors showing the same file share one document: one identifier, one version, one open on the server.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally/v4"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/position"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Document is a copy of one tracked document as seen from an editor.
type Document struct {
	// Handle is the editor the document was looked up with.
	Handle     entity.EditorHandle
	URI        uri.URI
	LanguageID protocol.LanguageIdentifier
	Version    int32
	Snapshot   *position.Snapshot
	// Session is the session the document is open on, or uuid.Nil.
	Session uuid.UUID
	// Editors is the number of editors showing the document. It is 0 once the last one was removed.
	Editors int
}

// Identifier returns the server-side identifier of the document.
func (d Document) Identifier() entity.DocumentIdentifier {
	return entity.DocumentIdentifier{URI: d.URI, Version: d.Version}
}

// Opened reports whether the document is open on a session.
func (d Document) Opened() bool {
	return d.Session != uuid.Nil
}

// Repository is the single writer of document versions.
type Repository interface {
	// Add starts tracking the document of an editor. When another editor already shows the same
	// file, the editor joins that document and its text is ignored; Editors is then above 1.
	Add(ctx context.Context, handle entity.EditorHandle, editor entity.Editor) (Document, error)
	Get(ctx context.Context, handle entity.EditorHandle) (Document, error)
	// Update replaces the text of the document shown in an editor and bumps its version.
	Update(ctx context.Context, handle entity.EditorHandle, text string) (Document, error)
	// Remove stops tracking an editor. The document is forgotten with its last editor; Editors is then 0.
	Remove(ctx context.Context, handle entity.EditorHandle) (Document, error)
	Attach(ctx context.Context, handle entity.EditorHandle, session uuid.UUID) (Document, error)
	DetachSession(ctx context.Context, session uuid.UUID) []uri.URI
	// List returns one Document per tracked file, looked up with its first editor.
	List(ctx context.Context) []Document
}

type entry struct {
	uri        uri.URI
	languageID protocol.LanguageIdentifier
	version    int32
	snapshot   *position.Snapshot
	session    uuid.UUID
	editors    map[entity.EditorHandle]struct{}
}

type repository struct {
	mu      sync.Mutex
	editors map[entity.EditorHandle]*entry
	entries map[uri.URI]*entry
	stats   tally.Scope
}

// New returns an in-memory document table.
func New(stats tally.Scope) Repository {
	return &repository{
		editors: make(map[entity.EditorHandle]*entry),
		entries: make(map[uri.URI]*entry),
		stats:   stats.SubScope("documents"),
	}
}

func (r *repository) Add(ctx context.Context, handle entity.EditorHandle, editor entity.Editor) (Document, error) {
	if editor.Path == "" {
		return Document{}, errors.New("can't track a document without a path")
	}
	path, err := filepath.Abs(editor.Path)
	if err != nil {
		return Document{}, err
	}
	u := uri.File(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.editors[handle]; ok {
		if e.uri == u {
			return e.document(handle), nil
		}
		return Document{}, fmt.Errorf("editor %q already shows %s", handle, e.uri)
	}

	e, ok := r.entries[u]
	if !ok {
		e = &entry{
			uri:        u,
			languageID: editor.LanguageID,
			snapshot:   position.NewSnapshot(editor.Text),
			editors:    make(map[entity.EditorHandle]struct{}),
		}
		r.entries[u] = e
	}
	e.editors[handle] = struct{}{}
	r.editors[handle] = e
	r.publish()
	return e.document(handle), nil
}

func (r *repository) Get(ctx context.Context, handle entity.EditorHandle) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.editors[handle]
	if !ok {
		return Document{}, &errors.UntrackedDocumentError{Handle: string(handle)}
	}
	return e.document(handle), nil
}

func (r *repository) Update(ctx context.Context, handle entity.EditorHandle, text string) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.editors[handle]
	if !ok {
		return Document{}, &errors.UntrackedDocumentError{Handle: string(handle)}
	}
	e.version++
	e.snapshot = position.NewSnapshot(text)
	return e.document(handle), nil
}

func (r *repository) Remove(ctx context.Context, handle entity.EditorHandle) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.editors[handle]
	if !ok {
		return Document{}, &errors.UntrackedDocumentError{Handle: string(handle)}
	}
	delete(r.editors, handle)
	delete(e.editors, handle)
	if len(e.editors) == 0 {
		delete(r.entries, e.uri)
	}
	r.publish()
	return e.document(handle), nil
}

// Attach records that the document shown in an editor was opened on a session.
func (r *repository) Attach(ctx context.Context, handle entity.EditorHandle, session uuid.UUID) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.editors[handle]
	if !ok {
		return Document{}, &errors.UntrackedDocumentError{Handle: string(handle)}
	}
	e.session = session
	return e.document(handle), nil
}

// DetachSession forgets that documents are open on a session that ended and returns their URIs.
func (r *repository) DetachSession(ctx context.Context, session uuid.UUID) []uri.URI {
	r.mu.Lock()
	defer r.mu.Unlock()

	var detached []uri.URI
	for u, e := range r.entries {
		if e.session == session {
			e.session = uuid.Nil
			detached = append(detached, u)
		}
	}
	sort.Slice(detached, func(i, j int) bool { return detached[i] < detached[j] })
	return detached
}

func (r *repository) List(ctx context.Context) []Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	docs := make([]Document, 0, len(r.entries))
	for _, e := range r.entries {
		docs = append(docs, e.document(e.firstEditor()))
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].URI < docs[j].URI })
	return docs
}

// publish must be called with mu held.
func (r *repository) publish() {
	r.stats.Gauge("tracked").Update(float64(len(r.entries)))
	r.stats.Gauge("editors").Update(float64(len(r.editors)))
}

func (e *entry) document(handle entity.EditorHandle) Document {
	return Document{
		Handle:     handle,
		URI:        e.uri,
		LanguageID: e.languageID,
		Version:    e.version,
		Snapshot:   e.snapshot,
		Session:    e.session,
		Editors:    len(e.editors),
	}
}

func (e *entry) firstEditor() entity.EditorHandle {
	var first entity.EditorHandle
	for h := range e.editors {
		if first == "" || h < first {
			first = h
		}
	}
	return first
}
