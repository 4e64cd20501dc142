// Package imap wraps an IMAP session with the operations a worker needs:
// connect/login, folder select with a best-effort fallback chain, UID
// search, header fetch with MIME decoding, and move-with-fallback.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/pkg/errors"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/tracing"
)

// Credentials is the minimal set of values needed to open a session.
type Credentials struct {
	Server   string
	Port     int
	Username string
	Password string
	TLS      bool
}

// Session wraps an authenticated *client.Client for the duration of one
// worker run. A single worker holds one session; it is never shared across
// goroutines.
type Session struct {
	c *client.Client
}

// Dial connects and logs in. The caller owns the returned Session and must
// call Close when done.
func Dial(ctx context.Context, creds Credentials) (*Session, error) {
	span, _ := tracing.StartTracerSpan(ctx, "imap.Dial")
	defer span.Finish()
	tracing.TagComponentImap(span)

	addr := fmt.Sprintf("%s:%d", creds.Server, creds.Port)
	var c *client.Client
	var err error
	if creds.TLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: creds.Server})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(ierrors.ErrIMAPConnectionFailed, "dial %s: %v", addr, err)
	}

	c.Timeout = 30 * time.Second
	if err := c.Login(creds.Username, creds.Password); err != nil {
		_ = c.Logout()
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(ierrors.ErrIMAPConnectionFailed, "login as %s: %v", creds.Username, err)
	}
	c.Timeout = 0

	return &Session{c: c}, nil
}

func (s *Session) Close() error {
	return s.c.Logout()
}

// SelectFolder selects folder for read-only or read-write access, falling
// back to INBOX if that fails — a client never aborts a run just because a
// configured folder no longer exists on the server. The name is sent once,
// quoted by the library as the protocol needs; there is no second attempt
// with an unquoted name.
func (s *Session) SelectFolder(ctx context.Context, folder string, readOnly bool) (*goimap.MailboxStatus, error) {
	span, _ := tracing.StartTracerSpan(ctx, "imap.SelectFolder")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag("folder", folder)

	mbox, err := s.c.Select(folder, readOnly)
	if err == nil {
		return mbox, nil
	}

	mbox, err2 := s.c.Select("INBOX", readOnly)
	if err2 == nil {
		return mbox, nil
	}
	tracing.TraceErr(span, err)
	return nil, errors.Wrapf(ierrors.ErrIMAPConnectionFailed, "select %q: %v (fallback to INBOX also failed: %v)", folder, err, err2)
}

// EnsureFolder creates folder when it does not exist yet. Existence is
// checked with STATUS, which leaves the currently selected mailbox (the
// source folder a following Move reads from) selected.
func (s *Session) EnsureFolder(ctx context.Context, folder string) error {
	span, _ := tracing.StartTracerSpan(ctx, "imap.EnsureFolder")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag("folder", folder)

	items := []goimap.StatusItem{goimap.StatusMessages}
	if _, err := s.c.Status(folder, items); err == nil {
		return nil
	}
	if err := s.c.Create(folder); err != nil {
		if _, stErr := s.c.Status(folder, items); stErr == nil {
			return nil
		}
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "create folder %q", folder)
	}
	return nil
}

func (s *Session) ListFolders(ctx context.Context) ([]string, error) {
	span, _ := tracing.StartTracerSpan(ctx, "imap.ListFolders")
	defer span.Finish()
	tracing.TagComponentImap(span)

	ch := make(chan *goimap.MailboxInfo, 32)
	done := make(chan error, 1)
	go func() { done <- s.c.List("", "*", ch) }()

	var folders []string
	for m := range ch {
		if m != nil {
			folders = append(folders, m.Name)
		}
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "imap: list folders")
	}
	return folders, nil
}
