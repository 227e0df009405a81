// Package otrs is a minimal client for the OTRS GenericInterface REST
// ticket connector: it opens a session and creates tickets with one article.
package otrs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "wartungsplan/internal/log"
)

// DefaultWebservice is the connector name shipped with OTRS.
const DefaultWebservice = "GenericTicketConnectorREST"

// ErrNoSession is returned by TicketCreate before a session was opened.
var ErrNoSession = errors.New("otrs: no session")

// Ticket holds the fields of a new ticket.
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

// Created identifies a ticket returned by TicketCreate.
type Created struct {
	TicketID     string
	TicketNumber string
	ArticleID    string
}

// APIError is an error reported by the web service in the response body.
type APIError struct {
	Code    string `json:"ErrorCode"`
	Message string `json:"ErrorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("otrs: %s: %s", e.Code, e.Message)
}

// Client talks to one web service. It is not safe for concurrent use.
type Client struct {
	baseURL   string
	username  string
	password  string
	http      *http.Client
	sessionID string
}

// NewClient creates a client for server (e.g. "https://otrs.example.com")
// and webservice. An empty webservice uses DefaultWebservice.
func NewClient(server, webservice, username, password string) *Client {
	if webservice == "" {
		webservice = DefaultWebservice
	}
	return &Client{
		baseURL: strings.TrimRight(server, "/") +
			"/otrs/nph-genericinterface.pl/Webservice/" + url.PathEscape(webservice),
		username: username,
		password: password,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SessionCreate logs in and stores the session ID for later calls.
func (c *Client) SessionCreate(ctx context.Context) error {
	req := struct {
		UserLogin string `json:"UserLogin"`
		Password  string `json:"Password"`
	}{c.username, c.password}

	var resp struct {
		SessionID string    `json:"SessionID"`
		Error     *APIError `json:"Error"`
	}
	if err := c.post(ctx, "/Session", req, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if resp.SessionID == "" {
		return errors.New("otrs: session response without SessionID")
	}
	c.sessionID = resp.SessionID
	appLog.Debug("otrs session created", "user", c.username)
	return nil
}

// TicketCreate creates a ticket with a single article.
func (c *Client) TicketCreate(ctx context.Context, t Ticket, a Article) (Created, error) {
	if c.sessionID == "" {
		return Created{}, ErrNoSession
	}

	req := struct {
		SessionID string  `json:"SessionID"`
		Ticket    Ticket  `json:"Ticket"`
		Article   Article `json:"Article"`
	}{c.sessionID, t, a}

	var resp struct {
		TicketID     idString  `json:"TicketID"`
		TicketNumber idString  `json:"TicketNumber"`
		ArticleID    idString  `json:"ArticleID"`
		Error        *APIError `json:"Error"`
	}
	if err := c.post(ctx, "/Ticket", req, &resp); err != nil {
		return Created{}, err
	}
	if resp.Error != nil {
		return Created{}, resp.Error
	}
	if resp.TicketID == "" {
		return Created{}, errors.New("otrs: ticket response without TicketID")
	}
	return Created{
		TicketID:     string(resp.TicketID),
		TicketNumber: string(resp.TicketNumber),
		ArticleID:    string(resp.ArticleID),
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("otrs: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("otrs: %s: %s", path, resp.Status)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("otrs: %s: decode response: %w", path, err)
	}
	return nil
}

// idString accepts IDs encoded either as JSON strings or numbers; OTRS
// versions differ in which one they send.
type idString string

func (s *idString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = idString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = idString(n.String())
	return nil
}
