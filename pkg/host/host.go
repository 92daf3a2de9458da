// Package host implements the settings operations available to a host session.
package host

import (
	"context"
	"net/http"
	"strings"

	"github.com/grovetools/tether/errors"
	"github.com/grovetools/tether/logging"
	"github.com/grovetools/tether/pkg/models"
	"github.com/grovetools/tether/pkg/proximity"
	"github.com/sirupsen/logrus"
)

// Poster sends an authenticated JSON request. *gateway.Gateway satisfies it.
type Poster interface {
	PostJSON(ctx context.Context, path string, body, out interface{}) error
}

// Client changes host settings on the server and mirrors accepted thresholds
// into the local store.
type Client struct {
	poster     Poster
	thresholds *proximity.ThresholdStore
	logger     *logrus.Entry
}

// NewClient creates a host settings client. thresholds receives accepted
// values and may be shared with the monitor.
func NewClient(poster Poster, thresholds *proximity.ThresholdStore, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logging.NewLogger("host")
	}
	return &Client{poster: poster, thresholds: thresholds, logger: logger}
}

// Thresholds returns the active thresholds.
func (c *Client) Thresholds() proximity.Thresholds {
	return c.thresholds.Load()
}

// RenameMember changes the display name of a tracked member.
func (c *Client) RenameMember(ctx context.Context, before, after string) error {
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)
	if before == "" {
		return errors.InvalidInput("beforeName", "must not be empty")
	}
	if after == "" {
		return errors.InvalidInput("afterName", "must not be empty")
	}
	if before == after {
		return errors.InvalidInput("afterName", "must differ from the current name")
	}

	var resp models.StatusResponse
	if err := c.poster.PostJSON(ctx, "/host/name", models.RenameMemberRequest{BeforeName: before, AfterName: after}, &resp); err != nil {
		return err
	}
	if resp.Success != nil && !*resp.Success {
		return errors.FromStatus(http.MethodPost, "/host/name", http.StatusBadRequest, resp.Message)
	}

	c.logger.WithFields(logrus.Fields{"before": before, "after": after}).Info("Member renamed")
	return nil
}

// UpdateThresholds validates t, sends it to the server and, once accepted,
// makes it the active triple. Invalid values never reach the server and leave
// the active thresholds unchanged.
func (c *Client) UpdateThresholds(ctx context.Context, t proximity.Thresholds) error {
	if err := proximity.ValidateThresholds(t); err != nil {
		return err
	}

	var resp models.StatusResponse
	body := models.ThresholdsRequest{Safe: t.Safe, Warning: t.Warning, Danger: t.Danger}
	if err := c.poster.PostJSON(ctx, "/host/distance", body, &resp); err != nil {
		return err
	}
	if resp.Success != nil && !*resp.Success {
		return errors.FromStatus(http.MethodPost, "/host/distance", http.StatusBadRequest, resp.Message)
	}

	if err := c.thresholds.Set(t); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"safe":    t.Safe,
		"warning": t.Warning,
		"danger":  t.Danger,
	}).Info("Thresholds updated")
	return nil
}
