package mailsource

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/cmclass/inbound-mail/internal/config"
	"github.com/cmclass/inbound-mail/internal/parser"
)

// imapSource opens authenticated IMAP sessions against one mailbox.
type imapSource struct {
	cfg config.MailReceiverConfig
}

func newIMAPSource(cfg config.MailReceiverConfig) *imapSource {
	return &imapSource{cfg: cfg}
}

func (s *imapSource) Protocol() config.Protocol { return config.ProtocolIMAP }

func (s *imapSource) Mailbox() string { return s.cfg.Mailbox }

// Connect dials the server, authenticates, and selects the configured
// mailbox. The returned session owns the connection; its Close logs out
// whatever happened in between.
func (s *imapSource) Connect(ctx context.Context) (Session, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var client *imapclient.Client
	var err error
	if s.cfg.TLS {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(s.cfg.User, s.cfg.Pass).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("authenticating %s: %w", s.cfg.User, err)
	}

	if _, err := client.Select(s.cfg.Mailbox, nil).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, fmt.Errorf("selecting mailbox %s: %w", s.cfg.Mailbox, err)
	}

	return &imapSession{client: client, cfg: s.cfg}, nil
}

type imapSession struct {
	client *imapclient.Client
	cfg    config.MailReceiverConfig
}

// ListCandidates searches for unseen messages and keeps the most recent
// max UIDs. The search returns UIDs in ascending order, so the tail of
// the result is the newest mail.
func (s *imapSession) ListCandidates(ctx context.Context, max int) ([]Candidate, error) {
	criteria := &imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}

	searchData, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching unseen messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}
	uids = lastN(uids, max)

	cands := make([]Candidate, 0, len(uids))
	for _, uid := range uids {
		cands = append(cands, Candidate{
			SourceID: strconv.FormatUint(uint64(uid), 10),
			uid:      uid,
		})
	}
	return cands, nil
}

// Fetch retrieves the envelope, internal date, and raw source of one
// message. The body section is peeked so fetching alone never flags the
// message seen; only Acknowledge does that.
func (s *imapSession) Fetch(ctx context.Context, cand Candidate) (*RawMessage, error) {
	bodySection := &imap.FetchItemBodySection{Peek: true}

	fetchCmd := s.client.Fetch(imap.UIDSetNum(cand.uid), &imap.FetchOptions{
		Envelope:     true,
		Flags:        true,
		UID:          true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})

	msg := fetchCmd.Next()
	if msg == nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %s not found", cand.SourceID)
	}

	buf, err := msg.Collect()
	if err != nil {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("collecting message UID %s: %w", cand.SourceID, err)
	}

	raw := buf.FindBodySection(bodySection)
	if len(raw) == 0 {
		_ = fetchCmd.Close()
		return nil, fmt.Errorf("message UID %s has no body section", cand.SourceID)
	}

	env := parser.Envelope{InternalDate: buf.InternalDate}
	if buf.Envelope != nil {
		env.MessageID = buf.Envelope.MessageID
		env.Subject = buf.Envelope.Subject
		env.Date = buf.Envelope.Date
		if len(buf.Envelope.From) > 0 {
			env.FromName = buf.Envelope.From[0].Name
			env.FromEmail = buf.Envelope.From[0].Addr()
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, fmt.Errorf("fetching message UID %s: %w", cand.SourceID, err)
	}

	return &RawMessage{
		SourceID: cand.SourceID,
		Raw:      raw,
		Envelope: env,
	}, nil
}

// Acknowledge flags the given UIDs seen in a single batched store call.
// A no-op when mark-seen is disabled or nothing was stored.
func (s *imapSession) Acknowledge(ctx context.Context, cands []Candidate) error {
	if !s.cfg.MarkSeen || len(cands) == 0 {
		return nil
	}

	uids := make([]imap.UID, 0, len(cands))
	for _, c := range cands {
		uids = append(uids, c.uid)
	}

	storeCmd := s.client.Store(imap.UIDSetNum(uids...), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagSeen},
	}, nil)

	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %d messages seen: %w", len(uids), err)
	}
	return nil
}

// Close logs out, releasing the server-side mailbox lock.
func (s *imapSession) Close() error {
	return s.client.Logout().Wait()
}
