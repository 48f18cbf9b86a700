// Package payment asks the payment gateway whether an application's
// registration fee has been settled.
package payment

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"registration-workers/internal/common/config"
	"registration-workers/internal/common/errors"
	httpclient "registration-workers/internal/common/http"
	"registration-workers/internal/common/logger"

	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "registration:payment:"

type statusResponse struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

type Gateway struct {
	client   *httpclient.Client
	baseURL  string
	apiKey   string
	cache    *redis.Client
	cacheTTL time.Duration
	logger   logger.Logger
}

// NewGateway builds a gateway client. cache may be nil.
func NewGateway(cfg config.PaymentConfig, cache *redis.Client, log logger.Logger) *Gateway {
	return &Gateway{
		client:   httpclient.NewClient(config.GetDuration(cfg.Timeout)),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		cache:    cache,
		cacheTTL: time.Duration(cfg.CacheTTL) * time.Second,
		logger:   log.WithFields(map[string]interface{}{"component": "payment-gateway"}),
	}
}

// PaymentConfirmed reports whether the gateway holds a successful payment.
// Only confirmations are cached since a payment never becomes unpaid.
func (g *Gateway) PaymentConfirmed(ctx context.Context, applicationID string) (bool, error) {
	if g.cached(ctx, applicationID) {
		return true, nil
	}

	var resp statusResponse
	endpoint := fmt.Sprintf("%s/payments/applications/%s/status", g.baseURL, url.PathEscape(applicationID))
	headers := map[string]string{}
	if g.apiKey != "" {
		headers["Authorization"] = "Bearer " + g.apiKey
	}

	err := g.client.GetJSON(ctx, endpoint, headers, &resp)
	var statusErr *httpclient.StatusError
	if stderrors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		g.logger.Warn("Payment gateway request failed", map[string]interface{}{
			"applicationId": applicationID,
			"error":         err.Error(),
		})
		return false, errors.NewPaymentGatewayUnavailableError(err)
	}

	confirmed := isSettled(resp.Status)
	if confirmed {
		g.remember(ctx, applicationID, resp.TransactionID)
	}
	g.logger.Debug("Payment status fetched", map[string]interface{}{
		"applicationId": applicationID,
		"status":        resp.Status,
		"confirmed":     confirmed,
	})
	return confirmed, nil
}

func isSettled(status string) bool {
	switch strings.ToLower(status) {
	case "success", "completed", "paid":
		return true
	}
	return false
}

func (g *Gateway) cached(ctx context.Context, applicationID string) bool {
	if g.cache == nil {
		return false
	}
	n, err := g.cache.Exists(ctx, cacheKeyPrefix+applicationID).Result()
	if err != nil {
		g.logger.Warn("Payment cache unavailable", map[string]interface{}{"error": err.Error()})
		return false
	}
	return n == 1
}

func (g *Gateway) remember(ctx context.Context, applicationID, transactionID string) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, cacheKeyPrefix+applicationID, transactionID, g.cacheTTL).Err(); err != nil {
		g.logger.Warn("Failed to cache payment confirmation", map[string]interface{}{"error": err.Error()})
	}
}
