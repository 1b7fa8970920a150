// Package trello is a read-only client for the Trello REST API.
package trello

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/felixgeelhaar/fortify/timeout"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Trello API root.
const DefaultBaseURL = "https://api.trello.com/1"

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 200
	// Trello caps action pages at 1000 entries.
	actionsLimit = "1000"
)

// ErrMissingCredentials is returned when the key or token is empty.
var ErrMissingCredentials = errors.New("trello key and token are required")

// APIError is a non-2xx response from Trello.
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("trello API error (%d) on %s: %s", e.StatusCode, e.Endpoint, e.Body)
}

// Config configures a Client.
type Config struct {
	APIKey  string
	Token   string
	BaseURL string
	// Throttle is the minimum spacing between requests. Zero disables it.
	Throttle time.Duration
	// Timeout bounds each request. Zero means 30s.
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to Trello. Every call is a single attempt.
type Client struct {
	apiKey  string
	token   string
	baseURL string
	timeout time.Duration
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" || cfg.Token == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	limit := rate.Inf
	if cfg.Throttle > 0 {
		limit = rate.Every(cfg.Throttle)
	}

	return &Client{
		apiKey:  cfg.APIKey,
		token:   cfg.Token,
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

func (c *Client) buildURL(endpoint string, params map[string]string) string {
	v := url.Values{}
	v.Set("key", c.apiKey)
	v.Set("token", c.token)
	for k, val := range params {
		v.Set(k, val)
	}
	return c.baseURL + endpoint + "?" + v.Encode()
}

func (c *Client) doGet(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("throttle: %w", err)
	}

	t := timeout.New[[]byte](timeout.Config{DefaultTimeout: c.timeout})
	return t.Execute(ctx, c.timeout, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(endpoint, params), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode >= 400 {
			if len(body) > maxErrorBody {
				body = body[:maxErrorBody]
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(body)}
		}
		return body, nil
	})
}

func (c *Client) getJSON(ctx context.Context, endpoint string, params map[string]string, v any) error {
	body, err := c.doGet(ctx, endpoint, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

// BoardLists returns the lists of a board.
func (c *Client) BoardLists(ctx context.Context, boardID string) ([]List, error) {
	var lists []List
	if err := c.getJSON(ctx, "/boards/"+boardID+"/lists", nil, &lists); err != nil {
		return nil, err
	}
	return lists, nil
}

// BoardCards returns the open cards of a board.
func (c *Client) BoardCards(ctx context.Context, boardID string) ([]Card, error) {
	var cards []Card
	err := c.getJSON(ctx, "/boards/"+boardID+"/cards", map[string]string{
		"fields": "name,idList,due,dateLastActivity,labels,idMembers,shortUrl",
	}, &cards)
	if err != nil {
		return nil, err
	}
	return cards, nil
}

// BoardMembers returns the members of a board.
func (c *Client) BoardMembers(ctx context.Context, boardID string) ([]Member, error) {
	var members []Member
	err := c.getJSON(ctx, "/boards/"+boardID+"/members", map[string]string{
		"fields": "fullName",
	}, &members)
	if err != nil {
		return nil, err
	}
	return members, nil
}

// CardMoves returns the list-change actions recorded for a card.
func (c *Client) CardMoves(ctx context.Context, cardID string) ([]Action, error) {
	var actions []Action
	err := c.getJSON(ctx, "/cards/"+cardID+"/actions", map[string]string{
		"filter": "updateCard:idList",
		"limit":  actionsLimit,
	}, &actions)
	if err != nil {
		return nil, err
	}
	return actions, nil
}
