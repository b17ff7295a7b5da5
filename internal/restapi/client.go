// Package restapi is the HTTP client for the conversation history store.
package restapi

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
)

// APIError is a non-2xx response from the server.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client talks to the REST endpoints of the chat server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client. token may be empty.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// CheckRoomRequest is the body of POST /checkRoom.
type CheckRoomRequest struct {
	FirstUser  int64 `json:"firstUser"`
	SecondUser int64 `json:"secondUser"`
}

// checkRoomResponse covers both shapes: {room: {_id}} for an existing room
// and {message, room: "<id>"} for the alternate one.
type checkRoomResponse struct {
	Message string          `json:"message"`
	Room    json.RawMessage `json:"room"`
}

// ErrNoRoom is returned when checkRoom answers without a usable room id.
var ErrNoRoom = errors.New("checkRoom: response carries no room id")

// CheckRoom returns the room id shared by the two users, creating it server side if needed.
func (c *Client) CheckRoom(ctx context.Context, firstUser, secondUser int64) (string, error) {
	var resp checkRoomResponse
	if err := c.do(ctx, http.MethodPost, "/checkRoom", CheckRoomRequest{FirstUser: firstUser, SecondUser: secondUser}, &resp); err != nil {
		return "", err
	}
	return parseRoomID(resp)
}

func parseRoomID(resp checkRoomResponse) (string, error) {
	if len(resp.Room) == 0 {
		return "", ErrNoRoom
	}
	if resp.Message != "" {
		var id string
		if err := json.Unmarshal(resp.Room, &id); err == nil && id != "" {
			return id, nil
		}
	}
	var obj struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(resp.Room, &obj); err == nil && obj.ID != "" {
		return obj.ID, nil
	}
	// Tolerate a bare string without the message marker.
	var id string
	if err := json.Unmarshal(resp.Room, &id); err == nil && id != "" {
		return id, nil
	}
	return "", ErrNoRoom
}

// StoredMessage is one persisted entry of GET /getMessages/{room}.
type StoredMessage struct {
	User      int64     `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsRead    *bool     `json:"isRead,omitempty"`
}

type messagesResponse struct {
	Messages []StoredMessage `json:"messages"`
}

// GetMessages fetches the durable log of a room in server order.
func (c *Client) GetMessages(ctx context.Context, roomID string) ([]StoredMessage, error) {
	var resp messagesResponse
	if err := c.do(ctx, http.MethodGet, "/getMessages/"+url.PathEscape(roomID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// AddMessageRequest is the body of POST /addMessage.
type AddMessageRequest struct {
	Room      string    `json:"room"`
	User      int64     `json:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// AddMessage persists a message that was already shown and broadcast.
func (c *Client) AddMessage(ctx context.Context, req AddMessageRequest) error {
	return c.do(ctx, http.MethodPost, "/addMessage", req, nil)
}

type markReadRequest struct {
	UserID int64 `json:"userId"`
}

// MarkMessagesAsRead records that userID has read the counterpart's messages in roomID.
func (c *Client) MarkMessagesAsRead(ctx context.Context, roomID string, userID int64) error {
	return c.do(ctx, http.MethodPost, "/markMessagesAsRead/"+url.PathEscape(roomID), markReadRequest{UserID: userID}, nil)
}

// UserData is the profile subset shown in the conversation header.
type UserData struct {
	Name      string `json:"name"`
	BirthDate string `json:"birthDate"`
	City      string `json:"city,omitempty"`
}

// TakeUserData fetches a user's profile.
func (c *Client) TakeUserData(ctx context.Context, userID int64) (*UserData, error) {
	var resp struct {
		Message UserData `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/takeUserData", map[string]int64{"telegramId": userID}, &resp); err != nil {
		return nil, err
	}
	return &resp.Message, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
