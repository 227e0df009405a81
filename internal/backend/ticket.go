package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"wartungsplan/internal/config"
	appLog "wartungsplan/internal/log"
	"wartungsplan/internal/message"
	"wartungsplan/internal/model"
)

const articleContentType = "text/plain; charset=utf8"

// Ticket holds the fields of a ticket to create.
type Ticket struct {
	Title        string `json:"Title"`
	Queue        string `json:"Queue"`
	State        string `json:"State"`
	Priority     string `json:"Priority"`
	CustomerUser string `json:"CustomerUser"`
}

// Article is the first article of a new ticket.
type Article struct {
	Subject     string `json:"Subject"`
	Body        string `json:"Body"`
	ContentType string `json:"ContentType"`
}

// TicketRequest is one prepared action of the ticket backend.
type TicketRequest struct {
	Ticket  Ticket  `json:"Ticket"`
	Article Article `json:"Article"`
}

// ticketClient is the part of the ticket system client the backend uses.
type ticketClient interface {
	SessionCreate(ctx context.Context) error
	TicketCreate(ctx context.Context, req TicketRequest) (string, error)
}

// TicketCreator opens one ticket per occurrence.
type TicketCreator struct {
	cfg     config.OTRSConfig
	headers config.HeaderPolicy
	mode    RunMode
	client  ticketClient
}

// NewTicket returns ErrDependencyUnavailable when the binary was built
// without the ticket client.
func NewTicket(cfg config.OTRSConfig, headers config.HeaderPolicy, mode RunMode) (*TicketCreator, error) {
	client, err := newTicketClient(cfg)
	if err != nil {
		return nil, err
	}
	return &TicketCreator{cfg: cfg, headers: headers, mode: mode, client: client}, nil
}

// Prepare fills the ticket from the configured defaults and lets
// allow-listed headers named after a ticket field override them.
func (t *TicketCreator) Prepare(h message.HeaderBlock, body string, occ model.Occurrence) (TicketRequest, error) {
	tk := Ticket{
		Title:        occ.Summary,
		Queue:        t.cfg.Queue,
		State:        t.cfg.State,
		Priority:     t.cfg.Priority,
		CustomerUser: t.cfg.CustomerUser,
	}

	for _, p := range t.headers {
		v, ok := headerValue(h, p.Name, p.Default)
		if !ok {
			continue
		}
		switch strings.ToLower(p.Name) {
		case "title":
			tk.Title = v
		case "queue":
			tk.Queue = v
		case "state":
			tk.State = v
		case "priority":
			tk.Priority = v
		case "customuser", "customer-user", "customer":
			tk.CustomerUser = v
		default:
			appLog.Debug("header has no ticket field", "header", p.Name)
		}
	}

	return TicketRequest{
		Ticket: tk,
		Article: Article{
			Subject:     tk.Title,
			Body:        body + "\n\n" + t.cfg.Footer,
			ContentType: articleContentType,
		},
	}, nil
}

func (t *TicketCreator) ApplyHeaders(_ message.HeaderBlock, _ model.Occurrence, pre TicketRequest) TicketRequest {
	return pre
}

// Perform creates every ticket over one session. A failed login returns
// ErrSessionFailed without creating anything.
func (t *TicketCreator) Perform(ctx context.Context, reqs []TicketRequest) error {
	if len(reqs) == 0 {
		return nil
	}

	if t.mode == DryRun {
		for _, r := range reqs {
			ticket, _ := json.Marshal(r.Ticket)
			article, _ := json.Marshal(r.Article)
			appLog.Info("dry run, would create ticket", "ticket", string(ticket), "article", string(article))
		}
		return nil
	}

	appLog.Info("opening ticket system session", "server", t.cfg.Server, "tickets", len(reqs))
	if err := t.client.SessionCreate(ctx); err != nil {
		appLog.Error("ticket system session could not be opened", err, "server", t.cfg.Server)
		return fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}

	var errs []error
	for _, r := range reqs {
		number, err := t.client.TicketCreate(ctx, r)
		if err != nil {
			appLog.Error("ticket create failed", err, "title", r.Ticket.Title)
			errs = append(errs, fmt.Errorf("ticket %q: %w", r.Ticket.Title, err))
			continue
		}
		appLog.Info("ticket created", "title", r.Ticket.Title, "number", number)
	}
	return errors.Join(errs...)
}
