// Package gateway talks to the outbound messaging gateway. Every channel has
// its own endpoint and body shape; all of them answer with the same result.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/popeskul/insdr-dispatcher/internal/channel"
	"github.com/popeskul/insdr-dispatcher/internal/config"
	"github.com/popeskul/insdr-dispatcher/internal/models"
	"github.com/popeskul/insdr-dispatcher/internal/payload"
)

var ErrUnexpectedParams = errors.New("params do not match channel")

// Result is the uniform gateway answer. StatusCode is set for non-2xx
// replies only.
type Result struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"messageId,omitempty"`
	Error             string `json:"error,omitempty"`
	StatusCode        int    `json:"-"`
}

// Unavailable reports a reply that says the gateway itself is in trouble
// rather than rejecting this message.
func (r *Result) Unavailable() bool {
	return r.StatusCode >= http.StatusInternalServerError || r.StatusCode == http.StatusTooManyRequests
}

type sendFunc func(ctx context.Context, req *payload.Request) (*Result, error)

type Client struct {
	http    *resty.Client
	baseURL string
	logger  *zap.Logger
	senders map[models.ChannelType]sendFunc
}

func NewClient(cfg config.GatewayConfig, logger *zap.Logger) *Client {
	httpClient := resty.New().
		SetTimeout(cfg.RequestTimeout()).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if cfg.APIKey != "" {
		httpClient.SetAuthToken(cfg.APIKey)
	}

	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
	c.senders = map[models.ChannelType]sendFunc{
		models.ChannelSMS:          c.sendText,
		models.ChannelLMS:          c.sendText,
		models.ChannelMMS:          c.sendMMS,
		models.ChannelAlimtalk:     c.sendAlimtalk,
		models.ChannelFriendtalk:   c.sendFriendtalk,
		models.ChannelBrandMessage: c.sendBrandMessage,
		models.ChannelBrandFree:    c.sendBrandFree,
	}
	return c
}

// Send routes req to its channel endpoint. Transport failures come back as
// errors, explicit gateway rejections as an unsuccessful Result.
func (c *Client) Send(ctx context.Context, req *payload.Request) (*Result, error) {
	send, ok := c.senders[req.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", channel.ErrUnsupportedChannel, req.Channel)
	}
	return send(ctx, req)
}

func (c *Client) SendSMS(ctx context.Context, req *payload.Request, p payload.TextParams) (*Result, error) {
	return c.post(ctx, "/v1/sms", req, textBody{envelopeOf(req), p})
}

func (c *Client) SendLMS(ctx context.Context, req *payload.Request, p payload.TextParams) (*Result, error) {
	return c.post(ctx, "/v1/lms", req, textBody{envelopeOf(req), p})
}

func (c *Client) SendMMS(ctx context.Context, req *payload.Request, p payload.MMSParams) (*Result, error) {
	return c.post(ctx, "/v1/mms", req, mmsBody{envelopeOf(req), p})
}

func (c *Client) SendAlimtalk(ctx context.Context, req *payload.Request, p payload.AlimtalkParams) (*Result, error) {
	return c.post(ctx, "/v1/kakao/alimtalk", req, alimtalkBody{envelopeOf(req), p})
}

func (c *Client) SendFriendtalk(ctx context.Context, req *payload.Request, p payload.FriendtalkParams) (*Result, error) {
	return c.post(ctx, "/v1/kakao/friendtalk", req, friendtalkBody{envelopeOf(req), p})
}

func (c *Client) SendBrandMessage(ctx context.Context, req *payload.Request, p payload.BrandMessageParams) (*Result, error) {
	return c.post(ctx, "/v1/kakao/brand-message", req, brandMessageBody{envelopeOf(req), p})
}

func (c *Client) SendBrandFree(ctx context.Context, req *payload.Request, p payload.BrandFreeParams) (*Result, error) {
	return c.post(ctx, "/v1/kakao/brand-free", req, brandFreeBody{envelopeOf(req), p})
}

func (c *Client) sendText(ctx context.Context, req *payload.Request) (*Result, error) {
	p, ok := req.Params.(payload.TextParams)
	if !ok {
		return nil, paramsMismatch(req)
	}
	if req.Channel == models.ChannelLMS {
		return c.SendLMS(ctx, req, p)
	}
	return c.SendSMS(ctx, req, p)
}

func (c *Client) sendMMS(ctx context.Context, req *payload.Request) (*Result, error) {
	p, ok := req.Params.(payload.MMSParams)
	if !ok {
		return nil, paramsMismatch(req)
	}
	return c.SendMMS(ctx, req, p)
}

func (c *Client) sendAlimtalk(ctx context.Context, req *payload.Request) (*Result, error) {
	p, ok := req.Params.(payload.AlimtalkParams)
	if !ok {
		return nil, paramsMismatch(req)
	}
	return c.SendAlimtalk(ctx, req, p)
}

func (c *Client) sendFriendtalk(ctx context.Context, req *payload.Request) (*Result, error) {
	p, ok := req.Params.(payload.FriendtalkParams)
	if !ok {
		return nil, paramsMismatch(req)
	}
	return c.SendFriendtalk(ctx, req, p)
}

func (c *Client) sendBrandMessage(ctx context.Context, req *payload.Request) (*Result, error) {
	p, ok := req.Params.(payload.BrandMessageParams)
	if !ok {
		return nil, paramsMismatch(req)
	}
	return c.SendBrandMessage(ctx, req, p)
}

func (c *Client) sendBrandFree(ctx context.Context, req *payload.Request) (*Result, error) {
	p, ok := req.Params.(payload.BrandFreeParams)
	if !ok {
		return nil, paramsMismatch(req)
	}
	return c.SendBrandFree(ctx, req, p)
}

func (c *Client) post(ctx context.Context, path string, req *payload.Request, body any) (*Result, error) {
	url := c.baseURL + path
	startTime := time.Now()

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.MessageID).
		SetBody(body).
		Post(url)

	duration := time.Since(startTime)

	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	c.logger.Debug("Gateway request completed",
		zap.String("url", url),
		zap.String("message_id", req.MessageID),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", duration))

	var result Result
	decodeErr := json.Unmarshal(resp.Body(), &result)

	if !resp.IsSuccess() {
		reason := fmt.Sprintf("gateway returned status %d", resp.StatusCode())
		if decodeErr == nil && result.Error != "" {
			reason = fmt.Sprintf("%s: %s", reason, result.Error)
		}
		return &Result{Success: false, Error: reason, StatusCode: resp.StatusCode()}, nil
	}

	if decodeErr != nil {
		// Accepted without a readable body: the message went out, the
		// provider id is unknown.
		c.logger.Warn("Gateway accepted request with unreadable body",
			zap.String("message_id", req.MessageID),
			zap.Error(decodeErr))
		return &Result{Success: true}, nil
	}

	if !result.Success && result.Error == "" {
		result.Error = "gateway rejected message"
	}

	return &result, nil
}

func paramsMismatch(req *payload.Request) error {
	return fmt.Errorf("%w: %s got %T", ErrUnexpectedParams, req.Channel, req.Params)
}
