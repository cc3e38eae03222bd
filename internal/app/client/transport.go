package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var ErrSyncFailed = errors.New("sync request failed")

// StreamUrl maps the server's http(s) base url to the push channel of a match.
func StreamUrl(base *url.URL, matchId string) string {
	u := base.JoinPath("matches", matchId, "stream")
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

type WebsocketDialer struct {
	url    string
	token  string
	dialer *websocket.Dialer
}

func NewWebsocketDialer(streamUrl, token string) *WebsocketDialer {
	return &WebsocketDialer{
		url:    streamUrl,
		token:  token,
		dialer: websocket.DefaultDialer,
	}
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Conn, error) {
	header := http.Header{}
	header.Set("Authorization", bearer(d.token))
	conn, resp, err := d.dialer.DialContext(ctx, d.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: status %d: %w", d.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", d.url, err)
	}
	return wsConn{conn}, nil
}

type wsConn struct {
	*websocket.Conn
}

func (c wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.Conn.ReadMessage()
	return data, err
}

// SyncClient is the synchronous channel: one HTTP request per action.
type SyncClient struct {
	http    *http.Client
	baseUrl *url.URL
	token   string
}

func NewSyncClient(baseUrl *url.URL, token string, httpClient *http.Client) *SyncClient {
	if httpClient == nil {
		httpClient = new(http.Client)
	}
	return &SyncClient{
		http:    httpClient,
		baseUrl: baseUrl,
		token:   token,
	}
}

// SubmitAction sends one action. A rejected action is not an error; only a
// transport failure or an unusable response is, wrapped in ErrSyncFailed.
func (c *SyncClient) SubmitAction(
	ctx context.Context,
	matchId string,
	actionType string,
	payload any,
) (
	dtos.ActionResponse,
	error,
) {
	req := dtos.ActionRequest{
		RequestId:  uuid.NewString(),
		ActionType: actionType,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return dtos.ActionResponse{}, fmt.Errorf("failed to encode payload: %w", err)
		}
		req.Payload = data
	}

	var resp dtos.ActionResponse
	u := c.baseUrl.JoinPath("matches", matchId, "actions")
	if err := c.do(ctx, http.MethodPost, u, req, http.StatusOK, &resp); err != nil {
		return dtos.ActionResponse{}, err
	}
	if resp.RequestId != req.RequestId {
		return dtos.ActionResponse{}, fmt.Errorf("%w: response for request %s - want %s", ErrSyncFailed, resp.RequestId, req.RequestId)
	}
	return resp, nil
}

func (c *SyncClient) CreateMatch(ctx context.Context, blackId, whiteId string) (*entities.MatchSession, error) {
	var session entities.MatchSession
	body := dtos.MatchCreateRequest{BlackId: blackId, WhiteId: whiteId}
	if err := c.do(ctx, http.MethodPost, c.baseUrl.JoinPath("matches"), body, http.StatusCreated, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *SyncClient) GetMatch(ctx context.Context, matchId string) (*entities.MatchSession, error) {
	var session entities.MatchSession
	if err := c.do(ctx, http.MethodGet, c.baseUrl.JoinPath("matches", matchId), nil, http.StatusOK, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *SyncClient) do(ctx context.Context, method string, u *url.URL, in any, want int, out any) error {
	body := new(bytes.Buffer)
	if in != nil {
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return fmt.Errorf("failed to encode body: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(c.token))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSyncFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%w: status %d %s", ErrSyncFailed, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode body: %w", ErrSyncFailed, err)
	}
	return nil
}

func bearer(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
