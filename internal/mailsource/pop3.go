package mailsource

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	pop3 "github.com/knadh/go-pop3"

	"github.com/cmclass/inbound-mail/internal/config"
	"github.com/cmclass/inbound-mail/internal/parser"
)

// pop3SocketTimeout bounds every read/write on the POP3 connection.
const pop3SocketTimeout = 30 * time.Second

// pop3Source opens POP3 sessions. POP3 has no server-side seen flag, so
// the ingest pipeline's existence check is the only dedup gate on this
// path.
type pop3Source struct {
	cfg config.MailReceiverConfig
}

func newPOP3Source(cfg config.MailReceiverConfig) *pop3Source {
	return &pop3Source{cfg: cfg}
}

func (s *pop3Source) Protocol() config.Protocol { return config.ProtocolPOP3 }

func (s *pop3Source) Mailbox() string { return s.cfg.Mailbox }

func (s *pop3Source) Connect(ctx context.Context) (Session, error) {
	client := pop3.New(pop3.Opt{
		Host:        s.cfg.Host,
		Port:        s.cfg.Port,
		TLSEnabled:  s.cfg.TLS,
		DialTimeout: pop3SocketTimeout,
	})

	conn, err := client.NewConn()
	if err != nil {
		addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
		return nil, fmt.Errorf("connecting to POP3 %s: %w", addr, err)
	}

	if err := conn.Auth(s.cfg.User, s.cfg.Pass); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("authenticating %s: %w", s.cfg.User, err)
	}

	return &pop3Session{conn: conn}, nil
}

type pop3Session struct {
	conn *pop3.Conn
}

// ListCandidates retrieves the UIDL listing and keeps the most recent
// max entries. Messages without a UIDL fall back to the session-scoped
// message number as identifier.
func (s *pop3Session) ListCandidates(ctx context.Context, max int) ([]Candidate, error) {
	ids, err := s.conn.Uidl(0)
	if err != nil {
		return nil, fmt.Errorf("retrieving UIDL listing: %w", err)
	}

	ids = lastN(ids, max)

	cands := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		sourceID := id.UID
		if sourceID == "" {
			sourceID = strconv.Itoa(id.ID)
		}
		cands = append(cands, Candidate{
			SourceID: sourceID,
			seq:      id.ID,
		})
	}
	return cands, nil
}

func (s *pop3Session) Fetch(ctx context.Context, cand Candidate) (*RawMessage, error) {
	buf, err := s.conn.RetrRaw(cand.seq)
	if err != nil {
		return nil, fmt.Errorf("retrieving message %s: %w", cand.SourceID, err)
	}

	return &RawMessage{
		SourceID: cand.SourceID,
		Raw:      buf.Bytes(),
		Envelope: parser.Envelope{},
	}, nil
}

// Acknowledge is a no-op: POP3 has no seen-flag semantics.
func (s *pop3Session) Acknowledge(ctx context.Context, cands []Candidate) error {
	return nil
}

// Close quits the session best-effort; quit errors are swallowed since
// everything of value already happened.
func (s *pop3Session) Close() error {
	_ = s.conn.Quit()
	return nil
}
