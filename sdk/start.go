package converse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-go/vai-converse/pkg/core"
)

const maxErrorBodyBytes = 64 << 10

// StartResult is the server response to a direct conversation start.
type StartResult struct {
	SessionID      string `json:"session_id"`
	AgentName      string `json:"agent_name"`
	InitialMessage string `json:"initial_message"`
	Message        string `json:"message"`
}

// StartDirect creates a conversation for a shared agent link and returns
// the session to join.
func (s *SessionsService) StartDirect(ctx context.Context, agentLink string) (*StartResult, error) {
	if s == nil || s.client == nil {
		return nil, core.NewInvalidRequestError("sessions service is not initialized")
	}
	agentLink = strings.TrimSpace(agentLink)
	if agentLink == "" {
		return nil, core.NewInvalidRequestErrorWithParam("agent link must not be empty", "agent_link")
	}

	endpoint, err := s.client.httpEndpoint("/conversations/start-direct/" + url.PathEscape(agentLink))
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	httpClient := s.client.httpClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: http.MethodPost, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeErrorResponse(resp)
	}

	var out StartResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, core.NewProtocolError("invalid start-direct response", err)
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return nil, core.NewProtocolError("start-direct response has no session_id", nil)
	}
	return &out, nil
}

// decodeErrorResponse maps a non-2xx API response to a *core.Error using the
// server's {"detail": ...} body when present.
func decodeErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	msg := ""
	if json.Unmarshal(body, &payload) == nil {
		switch d := payload.Detail.(type) {
		case string:
			msg = d
		case nil:
			msg = payload.Error
		default:
			if b, err := json.Marshal(d); err == nil {
				msg = string(b)
			}
		}
	}
	if strings.TrimSpace(msg) == "" {
		msg = strings.TrimSpace(string(body))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	e := core.NewServerError(msg)
	e.Code = fmt.Sprintf("%d", resp.StatusCode)
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		e.Type = core.ErrInvalidRequest
	}
	return e
}
