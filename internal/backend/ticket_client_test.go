//go:build !noticket

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wartungsplan/internal/config"
	"wartungsplan/internal/model"
)

func TestTicketAgainstHTTPServer(t *testing.T) {
	var tickets []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		switch {
		case strings.HasSuffix(r.URL.Path, "/Session"):
			_, _ = w.Write([]byte(`{"SessionID":"abc"}`))
		case strings.HasSuffix(r.URL.Path, "/Ticket"):
			tickets = append(tickets, body)
			_, _ = w.Write([]byte(`{"TicketID":"7","TicketNumber":"2016110528000013","ArticleID":"9"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	cfg := config.Config{OTRS: config.OTRSConfig{Server: srv.URL, Username: "plan", Password: "secret", Footer: "--"}}
	cfg.Normalize()

	tc, err := NewTicket(cfg.OTRS, config.HeaderPolicy{{Name: "Queue"}}, Live)
	require.NoError(t, err)

	occs := []model.Occurrence{{Summary: "Patchday", Description: "Queue: Ops5\n\nPatch."}}
	require.NoError(t, Bind[TicketRequest](tc).Run(context.Background(), occs))

	require.Len(t, tickets, 1)
	assert.Equal(t, "abc", tickets[0]["SessionID"])
	ticket := tickets[0]["Ticket"].(map[string]any)
	assert.Equal(t, "Ops5", ticket["Queue"])
	assert.Equal(t, config.DefaultPriority, ticket["Priority"])
	article := tickets[0]["Article"].(map[string]any)
	assert.Equal(t, "\nPatch.\n\n--", article["Body"])
}

func TestTicketSessionRejectedOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error":{"ErrorCode":"SessionCreate.AuthFail","ErrorMessage":"Authorization failing!"}}`))
	}))
	defer srv.Close()

	tc, err := NewTicket(config.OTRSConfig{Server: srv.URL, Username: "plan", Password: "wrong"}, nil, Live)
	require.NoError(t, err)

	err = Bind[TicketRequest](tc).Run(context.Background(), []model.Occurrence{{Summary: "A"}})
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.ErrorContains(t, err, "AuthFail")
}
