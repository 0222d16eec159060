package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/harborpeak/calbridge-mcp/internal/cache"
	"github.com/harborpeak/calbridge-mcp/internal/models"
)

// calendarListTTL bounds how stale a cached calendar list may be. Calendar
// metadata changes rarely; five minutes keeps tool calls cheap without users
// noticing lag after adding a calendar.
const calendarListTTL = 5 * time.Minute

// TokenSource supplies a live upstream token for an account.
type TokenSource interface {
	Tokens(ctx context.Context, accountID string) (*oauth2.Token, error)
}

// CalendarLister fetches the raw calendar list from the provider.
type CalendarLister interface {
	ListCalendars(ctx context.Context, token *oauth2.Token) ([]models.Calendar, error)
}

// Registry serves per-account calendar lists, caching provider responses so
// repeated tool calls do not hammer the upstream API.
type Registry struct {
	tokens    TokenSource
	calendars CalendarLister
	cache     cache.Cache
}

// New creates a calendar registry.
func New(tokens TokenSource, calendars CalendarLister, c cache.Cache) *Registry {
	return &Registry{tokens: tokens, calendars: calendars, cache: c}
}

// Calendars returns the calendar list for an account, from cache when fresh.
func (r *Registry) Calendars(ctx context.Context, accountID string) ([]models.Calendar, error) {
	key := "calendars:" + accountID
	if data, ok := r.cache.Get(ctx, key); ok {
		var calendars []models.Calendar
		if err := json.Unmarshal(data, &calendars); err == nil {
			return calendars, nil
		}
		// A corrupt entry is dropped and refetched.
		r.cache.Delete(ctx, key)
	}

	token, err := r.tokens.Tokens(ctx, accountID)
	if err != nil {
		return nil, err
	}

	calendars, err := r.calendars.ListCalendars(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars for %s: %w", accountID, err)
	}

	if data, err := json.Marshal(calendars); err == nil {
		r.cache.Set(ctx, key, data, calendarListTTL)
	}
	return calendars, nil
}

// Invalidate drops an account's cached calendar list, forcing the next read
// to hit the provider.
func (r *Registry) Invalidate(ctx context.Context, accountID string) {
	r.cache.Delete(ctx, "calendars:"+accountID)
}
