package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/peteski22/cdflow/internal/donation"
	"github.com/peteski22/cdflow/internal/nationbuilder"
	"github.com/peteski22/cdflow/internal/plugin"
)

// resolvePerson finds the donor in NationBuilder, creating them if no match exists.
// A created person is returned alongside the id; it is nil when an existing person matched.
// When the adapter has a person_lookup plugin, the first one registered replaces the email match.
func (s *Service) resolvePerson(
	ctx context.Context,
	logger *slog.Logger,
	adapter string,
	rec *donation.Record,
) (string, *nationbuilder.Person, error) {
	query := &plugin.PersonQuery{
		CheckNumber: rec.TransactionID(),
		Email:       rec.Email,
		FirstName:   rec.FirstName,
		LastName:    rec.LastName,
	}
	if rec.Row != nil {
		query.Fields = rec.Row.Map()
	}

	lookups := s.registry.Get(adapter, plugin.TypePersonLookup)
	if len(lookups) > 0 {
		p := lookups[0]
		personID, found, message := runLookup(ctx, p, query, s.nationbuilder, s.defaultLookup(logger))
		rec.Email = strings.TrimSpace(query.Email)
		if found && personID != "" {
			logger.Debug("person found by lookup plugin", "plugin", p.Name, "person_id", personID)
			return personID, nil, nil
		}
		logger.Debug("lookup plugin found no person", "plugin", p.Name, "message", message)
	} else {
		personID, found, err := s.personByEmail(ctx, rec.Email)
		if err != nil {
			return "", nil, err
		}
		if found {
			return personID, nil, nil
		}
	}

	person, err := s.nationbuilder.CreatePerson(ctx, rec.ToPerson())
	if err != nil {
		return "", nil, err
	}
	logger.Info("created person", "person_id", person.ID, "email", person.Email)

	return person.ID.String(), person, nil
}

// personByEmail matches a person by email. A missing email or no match is not an error.
func (s *Service) personByEmail(ctx context.Context, email string) (string, bool, error) {
	if email == "" {
		return "", false, nil
	}

	personID, err := s.nationbuilder.PersonIDByEmail(ctx, email)
	switch {
	case err == nil:
		return personID, true, nil
	case errors.Is(err, nationbuilder.ErrNotFound):
		return "", false, nil
	default:
		return "", false, err
	}
}

// defaultLookup exposes the email match to lookup plugins.
func (s *Service) defaultLookup(logger *slog.Logger) plugin.DefaultLookup {
	return func(ctx context.Context, query *plugin.PersonQuery) (string, bool, string) {
		personID, found, err := s.personByEmail(ctx, query.Email)
		switch {
		case err != nil:
			logger.Warn("default person lookup failed", "email", query.Email, "error", err)
			return "", false, err.Error()
		case !found:
			return "", false, "no person found for email " + query.Email
		default:
			return personID, true, "found by email"
		}
	}
}

func runLookup(
	ctx context.Context,
	p plugin.Plugin,
	query *plugin.PersonQuery,
	people plugin.PeopleDirectory,
	fallback plugin.DefaultLookup,
) (personID string, found bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			personID, found, message = "", false, fmt.Sprintf("lookup plugin %s panicked: %v", p.Name, r)
		}
	}()
	return p.PersonLookup(ctx, query, people, fallback)
}
