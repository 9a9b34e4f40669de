// Package urlhealth checks container URLs and records their status.
//
// The checker writes only the URL health columns of a container. It never
// reads or changes visibility, ownership or anything entitlement depends on.
package urlhealth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/model"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/internal/store"
	"github.com/repeatableai/Container-app-workflow-voice-sub001/prometheus"
)

const defaultConcurrency = 8

// Checker periodically checks every container URL
type Checker struct {
	store       store.Store
	client      *http.Client
	interval    time.Duration
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

// NewChecker returns a Checker that checks every interval with the given
// per-request timeout
func NewChecker(st store.Store, interval, timeout time.Duration, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		store: st,
		client: &http.Client{
			Timeout: timeout,
			// a redirect is an answer; do not follow it
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		interval:    interval,
		concurrency: defaultConcurrency,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run checks once immediately and then on every tick until ctx is done
func (c *Checker) Run(ctx context.Context) {
	c.logger.Info("URL health checker started", zap.Duration("interval", c.interval))
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		if err := c.CheckAll(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("URL health pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			c.logger.Info("URL health checker stopped")
			return
		case <-ticker.C:
		}
	}
}

// CheckAll checks every container with a URL and stores the outcome
func (c *Checker) CheckAll(ctx context.Context) error {
	containers, err := c.store.ListContainersWithURL(ctx)
	if err != nil {
		return fmt.Errorf("list containers with url: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, container := range containers {
		container := container
		g.Go(func() error {
			status, detail := c.Check(ctx, container.URL)
			prometheus.RecordURLCheck(string(status))

			err := c.store.UpdateURLStatus(ctx, container.ID, store.URLCheck{
				Status:    status,
				CheckedAt: c.now(),
				Error:     detail,
			})
			if errors.Is(err, store.ErrNotFound) {
				// deleted while we checked it
				return nil
			}
			if err != nil {
				return fmt.Errorf("update url status of %s: %w", container.ID, err)
			}
			if status != model.URLStatusActive {
				c.logger.Debug("Container URL unhealthy",
					zap.String("container_id", container.ID),
					zap.String("status", string(status)),
					zap.String("detail", detail))
			}
			return nil
		})
	}
	err = g.Wait()
	c.logger.Info("URL health pass finished", zap.Int("checked", len(containers)))
	return err
}

// Check requests one URL with HEAD, retrying with GET when HEAD is not
// supported, and maps the answer onto a URL status
func (c *Checker) Check(ctx context.Context, rawURL string) (model.URLStatus, string) {
	code, err := c.fetch(ctx, http.MethodHead, rawURL)
	if err == nil && (code == http.StatusMethodNotAllowed || code == http.StatusNotImplemented) {
		code, err = c.fetch(ctx, http.MethodGet, rawURL)
	}
	if err != nil {
		return classifyError(err), err.Error()
	}
	status := StatusForCode(code)
	if status == model.URLStatusActive {
		return status, ""
	}
	return status, fmt.Sprintf("HTTP %d", code)
}

func (c *Checker) fetch(ctx context.Context, method, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", "marketplace-url-health/1.0")
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

// StatusForCode maps an HTTP status code onto a URL status
func StatusForCode(code int) model.URLStatus {
	switch {
	case code >= 200 && code < 400:
		return model.URLStatusActive
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return model.URLStatusAuthRequired
	case code == http.StatusTooManyRequests:
		return model.URLStatusBlocked
	}
	return model.URLStatusBroken
}

func classifyError(err error) model.URLStatus {
	if errors.Is(err, context.DeadlineExceeded) {
		return model.URLStatusTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return model.URLStatusTimeout
	}
	return model.URLStatusBroken
}
