package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/unieats/unieats-orders-service/internal/config"
	"github.com/unieats/unieats-orders-service/internal/logging"
)

var _ Notifier = (*HTTPNotificationClient)(nil)

// HTTPNotificationClient implements Notifier using the notification service.
type HTTPNotificationClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	logger     *logging.Logger
}

// NewHTTPNotificationClient creates a new HTTP-based notification client.
func NewHTTPNotificationClient(cfg config.ServiceConfig, logger *logging.Logger) *HTTPNotificationClient {
	return &HTTPNotificationClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// SendNotification sends a status update to the customer.
func (c *HTTPNotificationClient) SendNotification(ctx context.Context, n *Notification) error {
	c.logger.Debug("Sending notification", logging.Fields{
		"order_id":   n.OrderID,
		"user_id":    n.UserID,
		"new_status": n.NewStatus,
	})

	body, err := json.Marshal(n)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v2/notifications", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	setHeaders(ctx, req, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to send notification", logging.Fields{
			"order_id": n.OrderID,
			"error":    err.Error(),
		})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("notification service returned status %d", resp.StatusCode)
	}

	c.logger.Info("Notification sent", logging.Fields{
		"order_id":   n.OrderID,
		"new_status": n.NewStatus,
	})

	return nil
}
