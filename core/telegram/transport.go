package telegram

import (
	"fmt"
	"net"
	"net/http"
	"time"

	coreconfig "github.com/m3rciful/vocalbot/core/config"
	"github.com/m3rciful/vocalbot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

// The bot only reacts to messages and inline button presses.
var allowedUpdates = []string{"message", "callback_query"}

const (
	dialTimeout  = 5 * time.Second
	tlsHandshake = 5 * time.Second
	idleTimeout  = 30 * time.Second
	// replyMargin is added to the long-poll timeout: getUpdates holds the
	// response until the poll timeout expires.
	replyMargin  = 10 * time.Second
	retryCount   = 3
	retryBackoff = 2 * time.Second
)

// BuildPoller returns the webhook or long poller selected by cfg.
func BuildPoller(cfg *coreconfig.Config) tele.Poller {
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		return &tele.Webhook{
			Listen:         fmt.Sprintf("%s:%d", cfg.Webhook.Listen, cfg.Webhook.Port),
			SecretToken:    cfg.Webhook.Secret,
			AllowedUpdates: allowedUpdates,
			Endpoint:       &tele.WebhookEndpoint{PublicURL: cfg.Webhook.URL},
		}
	}
	return &tele.LongPoller{
		Timeout:        cfg.Telegram.PollTimeout(),
		AllowedUpdates: allowedUpdates,
	}
}

// BuildHTTPClient returns a Bot API client whose deadlines outlast one long poll.
// Transport failures (timeouts, refused dials) are retried with linear backoff.
func BuildHTTPClient(pollTimeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: idleTimeout}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   tlsHandshake,
		ResponseHeaderTimeout: pollTimeout + replyMargin,
	}
	return &http.Client{
		Timeout:   pollTimeout + 2*replyMargin,
		Transport: &retryTransport{base: transport, retries: retryCount, backoff: retryBackoff},
	}
}

type retryTransport struct {
	base    http.RoundTripper
	retries int
	backoff time.Duration
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	for attempt := 1; err != nil && attempt <= t.retries && netutil.ShouldRetry(err); attempt++ {
		if req.Body != nil && req.GetBody == nil {
			break
		}
		wait := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			wait.Stop()
			return nil, req.Context().Err()
		case <-wait.C:
		}
		retry := req.Clone(req.Context())
		if req.GetBody != nil {
			body, bodyErr := req.GetBody()
			if bodyErr != nil {
				return nil, bodyErr
			}
			retry.Body = body
		}
		resp, err = t.base.RoundTrip(retry)
	}
	return resp, err
}
