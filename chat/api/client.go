package api

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

	"github.com/rs/zerolog/log"
)

const defaultTimeout = 15 * time.Second

var (
	errMissingCredentials = errors.New("email and password are required")
	errMissingUsername    = errors.New("username is required")
)

// Client talks to the chat backend's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the API rooted at baseURL (e.g. http://localhost:5000).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL reports the API root the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for the user record, token included.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return User{}, errMissingCredentials
	}
	var out userEnvelope
	if err := c.do(ctx, http.MethodPost, "/api/users/login", "", credentials{Email: email, Password: password}, &out); err != nil {
		return User{}, fmt.Errorf("login: %w", err)
	}
	return out.User, nil
}

// Register creates an account. It does not establish a session.
func (c *Client) Register(ctx context.Context, email, password, username string) (User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return User{}, errMissingCredentials
	}
	if strings.TrimSpace(username) == "" {
		return User{}, errMissingUsername
	}
	var out userEnvelope
	body := credentials{Email: email, Password: password, Username: username}
	if err := c.do(ctx, http.MethodPost, "/api/users/register", "", body, &out); err != nil {
		return User{}, fmt.Errorf("register: %w", err)
	}
	return out.User, nil
}

// Messages fetches the full ordered history of a room.
func (c *Client) Messages(ctx context.Context, token, roomID string) ([]Message, error) {
	var out []Message
	if err := c.do(ctx, http.MethodGet, "/api/messages/"+url.PathEscape(roomID), token, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch messages for %s: %w", roomID, err)
	}
	return out, nil
}

// PostMessage creates a message in a room and returns the stored copy.
func (c *Client) PostMessage(ctx context.Context, token, roomID, content string) (Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/api/messages", token, newMessage{Content: content, GroupID: roomID}, &out); err != nil {
		return Message{}, fmt.Errorf("post message to %s: %w", roomID, err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("[api] request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
