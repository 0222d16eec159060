package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/harborpeak/calbridge-mcp/internal/models"
)

// CalendarClient fetches calendar metadata from the provider's REST API.
type CalendarClient struct {
	client *http.Client
	apiURL string
}

// NewCalendarClient creates a calendar API client against the provider base URL.
func NewCalendarClient(apiURL string) *CalendarClient {
	return &CalendarClient{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiURL: strings.TrimSuffix(apiURL, "/"),
	}
}

type calendarListPage struct {
	Items         []models.Calendar `json:"items"`
	NextPageToken string            `json:"nextPageToken"`
}

// ListCalendars returns every calendar visible to the token's account,
// following pagination.
func (c *CalendarClient) ListCalendars(ctx context.Context, token *oauth2.Token) ([]models.Calendar, error) {
	var calendars []models.Calendar
	pageToken := ""

	for {
		page, err := c.fetchPage(ctx, token, pageToken)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, page.Items...)
		if page.NextPageToken == "" {
			return calendars, nil
		}
		pageToken = page.NextPageToken
	}
}

// ValidateToken checks that a token can reach the calendar API at all.
func (c *CalendarClient) ValidateToken(ctx context.Context, token *oauth2.Token) error {
	_, err := c.fetchPage(ctx, token, "")
	return err
}

func (c *CalendarClient) fetchPage(ctx context.Context, token *oauth2.Token, pageToken string) (*calendarListPage, error) {
	apiURL := c.apiURL + "/users/me/calendarList"
	if pageToken != "" {
		apiURL += "?pageToken=" + url.QueryEscape(pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to calendar provider: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("invalid credentials: calendar provider rejected the token")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var page calendarListPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to parse calendar list: %w", err)
	}
	return &page, nil
}
