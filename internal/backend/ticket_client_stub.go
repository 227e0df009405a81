//go:build noticket

// Built with -tags noticket: the ticket system client is left out of the
// binary and the ticket backend cannot be constructed.

package backend

import "wartungsplan/internal/config"

func newTicketClient(config.OTRSConfig) (ticketClient, error) {
	return nil, ErrDependencyUnavailable
}
