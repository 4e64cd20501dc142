package imap

import (
	"bytes"
	"context"
	"io"
	"sort"
	"time"

	goimap "github.com/emersion/go-imap"
	"github.com/emersion/go-imap/move"
	"github.com/jhillyerd/enmime"
	"github.com/pkg/errors"

	"github.com/cleanr/inboxengine/internal/ierrors"
	"github.com/cleanr/inboxengine/internal/tracing"
)

// Message is one fetched header record. It carries enough to fingerprint,
// classify and apply without a second round trip to the server.
type Message struct {
	UID       uint32
	From      string
	Subject   string
	Date      string
	Flags     []string
	IsFlagged bool
	IsSeen    bool
}

// SearchCriteria selects which UIDs Search returns.
type SearchCriteria struct {
	Seen         *bool // nil = don't filter on \Seen
	SinceDaysAgo *int
}

func (s SearchCriteria) toIMAP() *goimap.SearchCriteria {
	c := goimap.NewSearchCriteria()
	if s.Seen != nil {
		if *s.Seen {
			c.WithFlags = []string{goimap.SeenFlag}
		} else {
			c.WithoutFlags = []string{goimap.SeenFlag}
		}
	}
	if s.SinceDaysAgo != nil {
		c.Since = time.Now().UTC().AddDate(0, 0, -*s.SinceDaysAgo)
	}
	return c
}

// Search returns all matching UIDs in ascending order (server-natural
// order for UID SEARCH). Callers apply their own ordering/slicing policy.
func (s *Session) Search(ctx context.Context, criteria SearchCriteria) ([]uint32, error) {
	span, _ := tracing.StartTracerSpan(ctx, "imap.Search")
	defer span.Finish()
	tracing.TagComponentImap(span)

	uids, err := s.c.UidSearch(criteria.toIMAP())
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "imap: search")
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// FetchHeaders fetches FLAGS and the From/Subject/Date headers for the
// given UIDs, decoding RFC 2047 encoded-words to UTF-8.
func (s *Session) FetchHeaders(ctx context.Context, uids []uint32) ([]Message, error) {
	span, _ := tracing.StartTracerSpan(ctx, "imap.FetchHeaders")
	defer span.Finish()
	tracing.TagComponentImap(span)

	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(goimap.SeqSet)
	for _, uid := range uids {
		seqSet.AddNum(uid)
	}

	section := &goimap.BodySectionName{
		BodyPartName: goimap.BodyPartName{
			Specifier: goimap.HeaderSpecifier,
			Fields:    []string{"FROM", "SUBJECT", "DATE"},
		},
		Peek: true,
	}
	items := []goimap.FetchItem{goimap.FetchFlags, goimap.FetchUid, section.FetchItem()}

	messages := make(chan *goimap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- s.c.UidFetch(seqSet, items, messages) }()

	var out []Message
	for raw := range messages {
		msg, err := decodeMessage(raw, section)
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	if err := <-done; err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "imap: fetch headers")
	}
	return out, nil
}

func decodeMessage(raw *goimap.Message, section *goimap.BodySectionName) (Message, error) {
	literal := raw.GetBody(section)
	if literal == nil {
		return Message{}, errors.New("imap: empty header body")
	}
	body, err := io.ReadAll(literal)
	if err != nil {
		return Message{}, errors.Wrap(err, "imap: read header body")
	}

	env, err := enmime.ReadEnvelope(bytes.NewReader(body))
	if err != nil {
		return Message{}, errors.Wrap(err, "imap: parse headers")
	}

	flags := raw.Flags
	isFlagged := containsFlag(flags, goimap.FlaggedFlag)
	isSeen := containsFlag(flags, goimap.SeenFlag)

	return Message{
		UID:       raw.Uid,
		From:      env.GetHeader("From"),
		Subject:   env.GetHeader("Subject"),
		Date:      env.GetHeader("Date"),
		Flags:     flags,
		IsFlagged: isFlagged,
		IsSeen:    isSeen,
	}, nil
}

func containsFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// Move moves uid from the currently selected folder to dest, preferring
// the server's MOVE extension when advertised and falling back to
// COPY + STORE \Deleted + EXPUNGE otherwise.
func (s *Session) Move(ctx context.Context, uid uint32, dest string) error {
	span, _ := tracing.StartTracerSpan(ctx, "imap.Move")
	defer span.Finish()
	tracing.TagComponentImap(span)
	span.SetTag("dest", dest)

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)

	moveClient := move.NewClient(s.c)
	if moveClient.SupportMove() {
		if err := moveClient.UidMoveWithFallback(seqSet, dest); err != nil {
			tracing.TraceErr(span, err)
			return errors.Wrapf(ierrors.ErrIMAPMoveFailed, "UID MOVE %d -> %s: %v", uid, dest, err)
		}
		return nil
	}

	if err := s.c.UidCopy(seqSet, dest); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(ierrors.ErrIMAPMoveFailed, "UID COPY %d -> %s: %v", uid, dest, err)
	}
	if err := s.markDeleted(seqSet); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "imap: mark deleted after copy")
	}
	return s.c.Expunge(nil)
}

// Delete marks uid \Deleted in the currently selected folder and expunges.
func (s *Session) Delete(ctx context.Context, uid uint32) error {
	span, _ := tracing.StartTracerSpan(ctx, "imap.Delete")
	defer span.Finish()
	tracing.TagComponentImap(span)

	seqSet := new(goimap.SeqSet)
	seqSet.AddNum(uid)
	if err := s.markDeleted(seqSet); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "imap: delete")
	}
	return s.c.Expunge(nil)
}

func (s *Session) markDeleted(seqSet *goimap.SeqSet) error {
	item := goimap.FormatFlagsOp(goimap.AddFlags, true)
	flags := []interface{}{goimap.DeletedFlag}
	return s.c.UidStore(seqSet, item, flags, nil)
}

