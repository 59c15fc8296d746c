// Package rest is the JSON-over-HTTP client for the platform backend.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatterline/realtime-go/internal/auth"
	"github.com/chatterline/realtime-go/internal/model"
	"github.com/chatterline/realtime-go/pkg/logger"
)

// ErrUnauthorized indicates the backend rejected the credential even after a
// refresh attempt.
var ErrUnauthorized = errors.New("rest: unauthorized")

// CredentialSource supplies a valid credential for authorized requests,
// refreshing it when necessary. RefreshRejected reports a token the server
// turned away so the source can rotate it even when the local clock still
// considers it fresh.
type CredentialSource interface {
	EnsureValid(ctx context.Context) (*model.Credential, error)
	RefreshRejected(ctx context.Context, rejected string) (*model.Credential, error)
}

// Client talks to the REST backend. Authorized requests attach a bearer
// token from the credential source; a 401 triggers one refresh-and-retry
// before the error is surfaced.
type Client struct {
	baseURL string
	http    *http.Client
	creds   CredentialSource
	tracer  trace.Tracer
	logger  *logger.Logger
}

// New creates a REST client for the given base URL.
func New(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("rest"),
		logger:  log,
	}
}

// SetCredentialSource wires the refresh coordinator in after construction;
// the coordinator itself depends on this client's Refresh call.
func (c *Client) SetCredentialSource(src CredentialSource) {
	c.creds = src
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// Login authenticates with username and password and returns the resulting
// credential, with identity and expiry derived from the token claims.
func (c *Client) Login(ctx context.Context, username, password string) (*model.Credential, error) {
	ctx, span := c.tracer.Start(ctx, "rest.Login")
	defer span.End()

	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return auth.CredentialFromToken(resp.AccessToken)
}

// Refresh exchanges the current token for a fresh one. Used exclusively by
// the refresh coordinator.
func (c *Client) Refresh(ctx context.Context, token string) (*model.Credential, error) {
	ctx, span := c.tracer.Start(ctx, "rest.Refresh")
	defer span.End()

	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", token, nil, &resp)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return auth.CredentialFromToken(resp.AccessToken)
}

type listChatsResponse struct {
	Chats []model.ChatSummary `json:"chats"`
}

// ListChats fetches the chat list for the current user.
func (c *Client) ListChats(ctx context.Context) ([]model.ChatSummary, error) {
	var resp listChatsResponse
	if err := c.doAuthed(ctx, http.MethodGet, "/api/v1/chats", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Chats, nil
}

// MarkRead tells the backend the chat was opened and its messages read.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	return c.doAuthed(ctx, http.MethodPost, "/api/v1/chats/"+chatID+"/read", nil, nil)
}

type sendMessageRequest struct {
	ClientID string `json:"client_id"`
	Content  string `json:"content"`
}

// SendMessage posts a message over HTTP. Fallback path for when the realtime
// connection is down; the gateway fans the message out to subscribers either
// way.
func (c *Client) SendMessage(ctx context.Context, chatID, clientID, content string) (*model.Message, error) {
	var msg model.Message
	body := sendMessageRequest{ClientID: clientID, Content: content}
	if err := c.doAuthed(ctx, http.MethodPost, "/api/v1/chats/"+chatID+"/messages", body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// doAuthed performs an authorized request. On a 401 it reports the rejected
// token to the credential source, retries once with the rotated credential,
// and surfaces a second 401 as ErrUnauthorized.
func (c *Client) doAuthed(ctx context.Context, method, path string, body, out any) error {
	if c.creds == nil {
		return errors.New("rest: no credential source configured")
	}

	cred, err := c.creds.EnsureValid(ctx)
	if err != nil {
		return err
	}

	err = c.do(ctx, method, path, cred.Token, body, out)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	cred, err = c.creds.RefreshRejected(ctx, cred.Token)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, cred.Token, body, out)
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s", method, path, readError(resp.Body, resp.StatusCode))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// readError extracts the backend's {"error": "..."} message, falling back to
// the status text.
func readError(body io.Reader, status int) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&e); err == nil && e.Error != "" {
		return e.Error
	}
	return http.StatusText(status)
}
