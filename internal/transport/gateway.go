package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client implements Transport against the chat gateway's REST API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a gateway client.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type messageRequest struct {
	Content string  `json:"content"`
	Prompt  *Prompt `json:"prompt,omitempty"`
}

type roleRequest struct {
	Reason string `json:"reason,omitempty"`
}

// ResolveMember looks up a current member.
func (c *Client) ResolveMember(ctx context.Context, community, userID string) (*Member, error) {
	var m Member
	path := fmt.Sprintf("/v1/communities/%s/members/%s",
		url.PathEscape(community), url.PathEscape(userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// MembersWithRole lists the current holders of a role.
func (c *Client) MembersWithRole(ctx context.Context, community, roleID string) ([]*Member, error) {
	var members []*Member
	path := fmt.Sprintf("/v1/communities/%s/roles/%s/members",
		url.PathEscape(community), url.PathEscape(roleID))
	if err := c.do(ctx, http.MethodGet, path, nil, &members); err != nil {
		return nil, err
	}
	return members, nil
}

// SendDirectMessage delivers a DM with an optional interactive prompt.
func (c *Client) SendDirectMessage(ctx context.Context, community string, member *Member, content string, prompt *Prompt) error {
	path := fmt.Sprintf("/v1/communities/%s/members/%s/messages",
		url.PathEscape(community), url.PathEscape(member.ID))
	return c.do(ctx, http.MethodPost, path, &messageRequest{Content: content, Prompt: prompt}, nil)
}

// AddRole assigns a role to a member.
func (c *Client) AddRole(ctx context.Context, community, userID, roleID, reason string) error {
	path := fmt.Sprintf("/v1/communities/%s/members/%s/roles/%s",
		url.PathEscape(community), url.PathEscape(userID), url.PathEscape(roleID))
	return c.do(ctx, http.MethodPut, path, &roleRequest{Reason: reason}, nil)
}

// RemoveRole removes a role from a member.
func (c *Client) RemoveRole(ctx context.Context, community, userID, roleID, reason string) error {
	path := fmt.Sprintf("/v1/communities/%s/members/%s/roles/%s",
		url.PathEscape(community), url.PathEscape(userID), url.PathEscape(roleID))
	return c.do(ctx, http.MethodDelete, path, &roleRequest{Reason: reason}, nil)
}

// PostToChannel posts text to a community channel.
func (c *Client) PostToChannel(ctx context.Context, community, channelID, text string) error {
	path := fmt.Sprintf("/v1/communities/%s/channels/%s/messages",
		url.PathEscape(community), url.PathEscape(channelID))
	return c.do(ctx, http.MethodPost, path, &messageRequest{Content: text}, nil)
}

// do performs one gateway request and classifies the response:
// 403 means the recipient is unreachable (ErrBlocked), 404 means the
// target does not exist (ErrNotFound), anything else non-2xx is returned
// as a plain error and treated as transient by callers.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, ErrBlocked)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("gateway returned status %d for %s %s: %s",
			resp.StatusCode, method, path, bytes.TrimSpace(snippet))
	}
}
