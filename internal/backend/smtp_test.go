package backend

import (
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/require"
)

// memoryBackend records every delivered message.
type memoryBackend struct {
	username string
	password string

	mu       sync.Mutex
	messages []memoryMessage
	logins   int
	sessions int
	rejectTo string
}

type memoryMessage struct {
	From string
	To   []string
	Data []byte
}

func (b *memoryBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	b.mu.Lock()
	b.sessions++
	b.mu.Unlock()
	return &memorySession{backend: b}, nil
}

func (b *memoryBackend) Messages() []memoryMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]memoryMessage(nil), b.messages...)
}

func (b *memoryBackend) Counts() (sessions, logins int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions, b.logins
}

type memorySession struct {
	backend       *memoryBackend
	authenticated bool
	from          string
	to            []string
}

func (s *memorySession) AuthMechanisms() []string {
	return []string{sasl.Plain}
}

func (s *memorySession) Auth(mech string) (sasl.Server, error) {
	if mech != sasl.Plain {
		return nil, errors.New("unsupported authentication mechanism")
	}
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return errors.New("invalid credentials")
		}
		s.authenticated = true
		s.backend.mu.Lock()
		s.backend.logins++
		s.backend.mu.Unlock()
		return nil
	}), nil
}

func (s *memorySession) Mail(from string, _ *smtp.MailOptions) error {
	if !s.authenticated {
		return smtp.ErrAuthRequired
	}
	s.from = from
	return nil
}

func (s *memorySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if to == s.backend.rejectTo {
		return &smtp.SMTPError{Code: 550, Message: "mailbox unavailable"}
	}
	s.to = append(s.to, to)
	return nil
}

func (s *memorySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, memoryMessage{From: s.from, To: s.to, Data: data})
	return nil
}

func (s *memorySession) Reset() {
	s.from = ""
	s.to = nil
}

func (s *memorySession) Logout() error {
	return nil
}

// newTestSMTPServer starts a plain-text SMTP server on a random port and
// returns its backend and a dialer for it.
func newTestSMTPServer(t *testing.T, username, password string) (*memoryBackend, DialFunc) {
	t.Helper()

	be := &memoryBackend{username: username, password: password}
	s := smtp.NewServer(be)
	s.Domain = "localhost"
	s.AllowInsecureAuth = true

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()

	go func() {
		_ = s.Serve(l)
	}()
	t.Cleanup(func() {
		_ = s.Close()
	})

	dial := func(string) (*smtp.Client, error) {
		return smtp.Dial(addr)
	}
	return be, dial
}
