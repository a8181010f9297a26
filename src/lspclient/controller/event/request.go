package event

import (
	"context"

	"github.com/uber/lsp-session/src/lspclient/controller/request"
	"github.com/uber/lsp-session/src/lspclient/controller/session"
	"github.com/uber/lsp-session/src/lspclient/entity"
	"github.com/uber/lsp-session/src/lspclient/internal/errors"
	"github.com/uber/lsp-session/src/lspclient/internal/future"
	"github.com/uber/lsp-session/src/lspclient/mapper"
	"github.com/uber/lsp-session/src/lspclient/repository/document"
	"go.lsp.dev/protocol"
)

// resolved is everything a request needs once its document was resolved to a session.
type resolved struct {
	doc      document.Document
	session  *session.Session
	requests *request.Manager
}

// resolve reports false when the request must be answered with an empty result without reaching a server.
func (m *manager) resolve(ctx context.Context, handle entity.EditorHandle, category entity.Category) (resolved, bool, error) {
	scope := m.stats.Tagged(map[string]string{"category": category.String()})

	doc, err := m.documents.Get(ctx, handle)
	if err != nil {
		scope.Counter("unavailable").Inc(1)
		return resolved{}, false, nil
	}
	s := m.sessionOf(doc)
	if s == nil {
		scope.Counter("unavailable").Inc(1)
		return resolved{}, false, nil
	}

	requests, err := s.RequestManager()
	if errors.Is(err, errors.ErrSessionStarting) {
		return resolved{}, false, nil
	}
	if err != nil {
		return resolved{}, false, err
	}
	scope.Counter("requested").Inc(1)
	return resolved{doc: doc, session: s, requests: requests}, true, nil
}

// await bounds the wait for src by the category's current timeout and decodes its value.
// Timeouts and transport errors settle the result with the zero value. A timeout cancels src and
// is recorded as a failure of the category only if the cancel won over the response.
func await[R, T any](ctx context.Context, m *manager, s *session.Session, category entity.Category, src *future.Future[R], decode func(R) (T, error)) *future.Future[T] {
	dst := future.New[T](func() { src.Cancel() })
	wait := m.policy.GetTimeout(category)
	expired := m.clock.After(wait)

	go func() {
		var zero T
		v, err := src.Wait(ctx, expired)
		if errors.Is(err, errors.ErrWaitExpired) {
			if src.Cancel() {
				s.NotifyFailure(category)
				m.stats.Tagged(map[string]string{"category": category.String()}).Counter("timeout").Inc(1)
				m.logger.Debugw("request timed out", "server", s.Name(), "category", category.String(), "timeout", wait)
				dst.Complete(zero)
				return
			}
			// Settled between the expiry and the cancel: its outcome is already recorded.
			v, err = src.Wait(ctx, nil)
		}

		switch {
		case err == nil:
			result, err := decode(v)
			if err != nil {
				m.logger.Warnw("failed to decode response", "server", s.Name(), "category", category.String(), "error", err)
				dst.Complete(zero)
				return
			}
			dst.Complete(result)

		case errors.IsNoResult(err):
			m.logger.Debugw("request failed", "server", s.Name(), "category", category.String(), "error", err)
			dst.Complete(zero)

		case ctx.Err() != nil:
			src.Cancel()
			dst.Fail(errors.ErrCancelled)

		default:
			dst.Fail(err)
		}
	}()
	return dst
}

// sessionOf returns the session a document is open on if that session is still healthy.
func (m *manager) sessionOf(doc document.Document) *session.Session {
	if !doc.Opened() {
		return nil
	}
	name, ok := m.servers.ServerFor(doc.LanguageID)
	if !ok {
		return nil
	}
	s := m.servers.Get(name)
	if s == nil || s.ID() != doc.Session || s.State() != entity.SessionStateHealthy {
		return nil
	}
	return s
}

// open sends didOpen and records the session on the document. lifecycleMu must be held.
func (m *manager) open(ctx context.Context, s *session.Session, doc document.Document) error {
	if err := m.notify(ctx, s, protocol.MethodTextDocumentDidOpen, mapper.DidOpenParams(doc.Identifier(), doc.LanguageID, doc.Snapshot.Text())); err != nil {
		return err
	}
	_, err := m.documents.Attach(ctx, doc.Handle, s.ID())
	return err
}

func (m *manager) notify(ctx context.Context, s *session.Session, method string, params interface{}) error {
	requests, err := s.RequestManager()
	if err != nil {
		return err
	}
	if err := requests.Notify(ctx, method, params); err != nil {
		m.logger.Warnw("failed to notify language server", "server", s.Name(), "method", method, "error", err)
		return err
	}
	return nil
}

func (m *manager) onSessionEvent(e session.Event) {
	switch e.Type {
	case session.EventStarted:
		m.reopen(e)
	case session.EventCrashed, session.EventClosed:
		detached := m.documents.DetachSession(m.ctx, e.Session)
		m.codeActions.Purge()
		if len(detached) > 0 {
			m.logger.Infow("documents detached from ended session", "server", e.Server, "event", e.Type.String(), "documents", len(detached))
		}
	}
}

// reopen opens every document of the started server that is not open yet.
func (m *manager) reopen(e session.Event) {
	s := m.servers.Get(e.Server)
	if s == nil || s.ID() != e.Session {
		return
	}

	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()

	opened := 0
	for _, doc := range m.documents.List(m.ctx) {
		if doc.Opened() {
			continue
		}
		if name, ok := m.servers.ServerFor(doc.LanguageID); !ok || name != e.Server {
			continue
		}
		if err := m.open(m.ctx, s, doc); err != nil {
			m.logger.Warnw("failed to open document", "server", e.Server, "uri", doc.URI, "error", err)
			continue
		}
		opened++
	}
	if opened > 0 {
		m.logger.Infow("opened documents on started server", "server", e.Server, "documents", opened)
	}
}
