//go:build !noticket

package backend

import (
	"context"

	"wartungsplan/internal/config"
	"wartungsplan/internal/otrs"
)

// otrsClient adapts otrs.Client to ticketClient.
type otrsClient struct {
	c *otrs.Client
}

func newTicketClient(cfg config.OTRSConfig) (ticketClient, error) {
	return otrsClient{c: otrs.NewClient(cfg.Server, cfg.Webservice, cfg.Username, cfg.Password)}, nil
}

func (o otrsClient) SessionCreate(ctx context.Context) error {
	return o.c.SessionCreate(ctx)
}

func (o otrsClient) TicketCreate(ctx context.Context, req TicketRequest) (string, error) {
	created, err := o.c.TicketCreate(ctx,
		otrs.Ticket{
			Title:        req.Ticket.Title,
			Queue:        req.Ticket.Queue,
			State:        req.Ticket.State,
			Priority:     req.Ticket.Priority,
			CustomerUser: req.Ticket.CustomerUser,
		},
		otrs.Article{
			Subject:     req.Article.Subject,
			Body:        req.Article.Body,
			ContentType: req.Article.ContentType,
		},
	)
	if err != nil {
		return "", err
	}
	return created.TicketNumber, nil
}
