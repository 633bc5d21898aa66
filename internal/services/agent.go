package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/franzego/tourpush/internal/models"
	"github.com/franzego/tourpush/internal/worker"
)

// AgentClient calls the local agent's notification routes.
type AgentClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAgentClient(baseURL string) *AgentClient {
	return &AgentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type agentResponse[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Notifications lists system notifications the agent is showing.
func (a *AgentClient) Notifications(ctx context.Context) ([]models.SystemNotification, error) {
	var out agentResponse[[]models.SystemNotification]
	if err := a.do(ctx, http.MethodGet, "/notifications", "list notifications", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Click clicks notification id.
func (a *AgentClient) Click(ctx context.Context, id string) (worker.ClickOutcome, error) {
	var out agentResponse[worker.ClickOutcome]
	path := "/notifications/" + url.PathEscape(id) + "/click"
	if err := a.do(ctx, http.MethodPost, path, "click notification", &out); err != nil {
		return worker.ClickOutcome{}, err
	}
	return out.Data, nil
}

func (a *AgentClient) do(ctx context.Context, method, path, op string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
