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

var _ InventoryClient = (*HTTPInventoryClient)(nil)

// HTTPInventoryClient implements InventoryClient against the cafeteria inventory service.
type HTTPInventoryClient struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	logger     *logging.Logger
}

// NewHTTPInventoryClient creates a new HTTP-based inventory client.
func NewHTTPInventoryClient(cfg config.ServiceConfig, logger *logging.Logger) *HTTPInventoryClient {
	return &HTTPInventoryClient{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		apiKey: cfg.APIKey,
		logger: logger,
	}
}

// DeductInventory asks the inventory service to remove the order's items from stock.
func (c *HTTPInventoryClient) DeductInventory(ctx context.Context, req *DeductionRequest) error {
	c.logger.Debug("Deducting inventory", logging.Fields{
		"order_id":   req.OrderID,
		"line_items": len(req.LineItems),
	})

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/api/v1/inventory/deductions", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}

	setHeaders(ctx, httpReq, c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("Inventory request failed", logging.Fields{
			"order_id": req.OrderID,
			"error":    err.Error(),
		})
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		c.logger.Error("Inventory request returned error", logging.Fields{
			"order_id":    req.OrderID,
			"status_code": resp.StatusCode,
		})
		return fmt.Errorf("inventory service returned status %d", resp.StatusCode)
	}

	c.logger.Info("Inventory deducted", logging.Fields{"order_id": req.OrderID})
	return nil
}
