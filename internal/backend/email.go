package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"wartungsplan/internal/config"
	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/message"
	"wartungsplan/internal/model"
)

// Email is one prepared message of the email backend.
type Email struct {
	Header mail.Header
	Body   string
}

// DialFunc opens an SMTP client connection to addr.
type DialFunc func(addr string) (*smtp.Client, error)

// DialTLS connects with implicit TLS, the way SMTPS on port 465 expects.
func DialTLS(addr string) (*smtp.Client, error) {
	return smtp.DialTLS(addr, nil)
}

// EmailSender sends one message per occurrence over a single authenticated
// SMTP session.
type EmailSender struct {
	mail    config.MailConfig
	headers config.HeaderPolicy
	mode    RunMode

	// Dial defaults to DialTLS.
	Dial DialFunc
	// Console receives rendered messages in dry-run mode. Defaults to
	// os.Stdout.
	Console io.Writer
	now     func() time.Time
}

func NewEmail(cfg config.MailConfig, headers config.HeaderPolicy, mode RunMode) *EmailSender {
	return &EmailSender{
		mail:    cfg,
		headers: headers,
		mode:    mode,
		Dial:    DialTLS,
		Console: os.Stdout,
		now:     time.Now,
	}
}

// Prepare builds a plain-text message with Subject, From, To, Date and
// Message-ID set.
func (s *EmailSender) Prepare(_ message.HeaderBlock, body string, occ model.Occurrence) (Email, error) {
	var h mail.Header
	h.SetSubject(occ.Summary)
	if err := setAddressHeader(&h, "From", s.mail.Sender); err != nil {
		return Email{}, err
	}
	if err := setAddressHeader(&h, "To", s.mail.Recipient); err != nil {
		return Email{}, err
	}
	h.SetDate(s.now())
	h.SetMessageID(uuid.NewString() + "@" + senderDomain(s.mail.Sender))
	h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	h.Set("Content-Transfer-Encoding", "quoted-printable")

	return Email{Header: h, Body: body}, nil
}

// ApplyHeaders sets every allow-listed header, in configured order, to the
// event's value or the configured default. Existing values are replaced. A
// header with neither keeps whatever Prepare set.
func (s *EmailSender) ApplyHeaders(h message.HeaderBlock, _ model.Occurrence, pre Email) Email {
	for _, p := range s.headers {
		v, ok := headerValue(h, p.Name, p.Default)
		if !ok {
			continue
		}
		if pre.Header.Has(p.Name) {
			appLog.Debug("replacing already set header", "header", p.Name)
		}
		pre.Header.Del(p.Name)
		pre.Header.SetText(p.Name, v)
	}
	return pre
}

func (s *EmailSender) Perform(ctx context.Context, msgs []Email) error {
	if len(msgs) == 0 {
		return nil
	}

	if s.mode == DryRun {
		appLog.Info("dry run, not sending mail", "messages", len(msgs))
		for _, m := range msgs {
			if err := render(s.Console, m); err != nil {
				return err
			}
			fmt.Fprintln(s.Console)
		}
		return nil
	}

	addr := net.JoinHostPort(s.mail.Server, strconv.Itoa(s.mail.Port))
	appLog.Info("sending mail", "server", addr, "messages", len(msgs), "recipient", s.mail.Recipient)

	c, err := s.Dial(addr)
	if err != nil {
		return fmt.Errorf("email: connect %s: %w", addr, err)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", s.mail.Sender, s.mail.Password)); err != nil {
		return fmt.Errorf("email: login as %s: %w", s.mail.Sender, err)
	}

	var errs []error
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := s.send(c, m); err != nil {
			appLog.Error("email send failed", err, "index", i, "subject", subject(m))
			errs = append(errs, fmt.Errorf("email %q: %w", subject(m), err))
			// Clear the half-finished transaction before the next message.
			_ = c.Reset()
			continue
		}
		appLog.Info("email sent", "subject", subject(m))
	}

	if err := c.Quit(); err != nil {
		appLog.Warn("smtp quit failed", "error", err)
	}
	return errors.Join(errs...)
}

func (s *EmailSender) send(c *smtp.Client, m Email) error {
	from := s.mail.Sender
	if list, err := m.Header.AddressList("From"); err == nil && len(list) > 0 {
		from = list[0].Address
	}

	var rcpts []string
	for _, key := range []string{"To", "Cc", "Bcc"} {
		list, err := m.Header.AddressList(key)
		if err != nil {
			return fmt.Errorf("%s header: %w", key, err)
		}
		for _, a := range list {
			rcpts = append(rcpts, a.Address)
		}
	}
	if len(rcpts) == 0 {
		return errors.New("no recipients")
	}

	var buf bytes.Buffer
	if err := render(&buf, m); err != nil {
		return err
	}
	return c.SendMail(from, rcpts, &buf)
}

// render writes m in wire format. Bcc is never rendered.
func render(w io.Writer, m Email) error {
	h := mail.Header{Header: m.Header.Header.Copy()}
	h.Del("Bcc")

	mw, err := mail.CreateSingleInlineWriter(w, h)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(mw, m.Body); err != nil {
		mw.Close()
		return err
	}
	return mw.Close()
}

func setAddressHeader(h *mail.Header, key, value string) error {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	list, err := mail.ParseAddressList(value)
	if err != nil {
		return fmt.Errorf("%s address %q: %w", key, value, err)
	}
	h.SetAddressList(key, list)
	return nil
}

func senderDomain(sender string) string {
	if a, err := mail.ParseAddress(sender); err == nil {
		sender = a.Address
	}
	if _, domain, ok := strings.Cut(sender, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}

func subject(m Email) string {
	s, err := m.Header.Subject()
	if err != nil {
		return m.Header.Get("Subject")
	}
	return s
}
