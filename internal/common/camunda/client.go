// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"registration-workers/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client is the gateway connection shared by the job workers and the
// event publisher.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig bounds re-sends of broker commands that failed on transport.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   5 * time.Second,
}

// NewClientWithConfig dials the gateway and fails fast when the topology
// request does not answer within ConnectionTimeout.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}

	zc, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("create zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()
	if _, err := zc.NewTopologyCommand().Send(ctx); err != nil {
		_ = zc.Close()
		return nil, fmt.Errorf("zeebe gateway %s unreachable: %w", cfg.GatewayAddress, err)
	}

	return &Client{client: zc, config: cfg}, nil
}

// GetClient exposes the raw client for job worker registration.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// PublishMessage correlates a named message with a running process instance.
// messageID makes re-publication of the same logical event a broker-side no-op.
func (c *Client) PublishMessage(ctx context.Context, name, correlationKey, messageID string, ttl time.Duration, vars map[string]interface{}) error {
	return c.send(ctx, "publish "+name, func(ctx context.Context) error {
		cmd, err := c.client.NewPublishMessageCommand().
			MessageName(name).
			CorrelationKey(correlationKey).
			MessageId(messageID).
			TimeToLive(ttl).
			VariablesFromMap(vars)
		if err != nil {
			return errors.NewPayloadValidationError(fmt.Sprintf("message %s variables: %v", name, err))
		}
		_, err = cmd.Send(ctx)
		return err
	})
}

// HealthCheck asks the gateway for its topology.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe topology: %w", err)
	}
	return nil
}

// send runs cmd, backing off on transport failures. Anything else is
// returned at once.
func (c *Client) send(ctx context.Context, op string, cmd func(context.Context) error) error {
	rc := c.config.RetryConfig
	delay := rc.BaseDelay
	for attempt := 0; ; attempt++ {
		callCtx := ctx
		cancel := func() {}
		if c.config.RequestTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		}
		err := cmd(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		if errors.CodeOf(err) != "" {
			return err
		}
		if !transient(err) {
			return errors.NewInternalError(fmt.Errorf("zeebe %s: %w", op, err))
		}
		if attempt >= rc.MaxRetries {
			return errors.NewBrokerUnavailableError(fmt.Sprintf("%s (%d attempts)", op, attempt+1), err)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.NewBrokerUnavailableError(op, ctx.Err())
		}
		if delay *= 2; delay > rc.MaxDelay {
			delay = rc.MaxDelay
		}
	}
}

var transientMarkers = []string{
	"connection refused",
	"connection reset",
	"deadline exceeded",
	"unavailable",
	"timeout",
	"broken pipe",
}

func transient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
