package platform

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Registrar registers the push worker. The worker lives in the agent, so
// registering means waiting until the agent answers its health check.
type Registrar struct {
	agentURL   string
	httpClient *http.Client
	interval   time.Duration
	timeout    time.Duration
	log        *zap.Logger
}

func NewRegistrar(agentURL string, log *zap.Logger) *Registrar {
	return &Registrar{
		agentURL: strings.TrimRight(agentURL, "/"),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		interval: 250 * time.Millisecond,
		timeout:  10 * time.Second,
		log:      log,
	}
}

// Register blocks until the worker is active for scope, giving up after
// the registrar's timeout or when ctx ends.
func (r *Registrar) Register(ctx context.Context, scope string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		err := r.ready(ctx)
		if err == nil {
			r.log.Debug("push worker ready", zap.String("scope", scope), zap.String("agent", r.agentURL))
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("push worker not ready at %s: %w", r.agentURL, err)
		case <-ticker.C:
		}
	}
}

func (r *Registrar) ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.agentURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent health returned %d", resp.StatusCode)
	}
	return nil
}
