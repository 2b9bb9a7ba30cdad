package kiro

import (
	"context"
	"net/http"
	"time"

	"github.com/kirogate/kirogate/internal/credentials"
	"github.com/kirogate/kirogate/internal/gatewayerr"
	internalhttp "github.com/kirogate/kirogate/pkg/internal/http"
	"github.com/kirogate/kirogate/pkg/internal/retry"
	"github.com/kirogate/kirogate/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Client dispatches translated requests to the upstream, selecting and
// rotating credentials on classified failure.
type Client struct {
	http   *internalhttp.Client
	store  *credentials.Store
	tracer trace.Tracer
}

// New builds a Client posting to baseURL and drawing credentials from store.
func New(baseURL string, store *credentials.Store) *Client {
	return &Client{
		// No client-level Timeout: it would also cap reading a streaming
		// body. Deadlines come from the caller's context instead.
		http:   internalhttp.NewClient(internalhttp.Config{BaseURL: baseURL, HTTPClient: &http.Client{}}),
		store:  store,
		tracer: telemetry.GetTracer(telemetry.DefaultSettings()),
	}
}

// Dispatch sends cs to the upstream's message endpoint. On success it
// returns the raw *http.Response (streaming body, caller must close it)
// paired with the ConnectionGuard for the credential that served the
// request; the guard must be released exactly once when the caller is
// done consuming the body.
func (c *Client) Dispatch(ctx context.Context, cs ConversationState) (*http.Response, *credentials.Guard, error) {
	ctx, span := c.tracer.Start(ctx, "kiro.Dispatch", trace.WithAttributes(
		attribute.String("conversation_id", cs.ConversationID),
		attribute.String("model", cs.Model),
	))
	defer span.End()

	var lastErr error
	attempts := c.store.Snapshot().Total
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		cred, err := c.store.Current()
		if err != nil {
			return nil, nil, err
		}

		if credentials.NeedsRefresh(cred) {
			if err := c.store.ForceRefresh(ctx, cred.ID); err != nil {
				c.store.RecordFailure(cred.ID)
				lastErr = gatewayerr.NewAuthenticationError("credential refresh failed: %v", err)
				continue
			}
		}

		guard := c.store.ConnectionGuard(cred)
		resp, classified, err := c.send(ctx, cred, cs)
		if err == nil {
			c.store.RecordSuccess(cred.ID)
			return resp, guard, nil
		}
		guard.Release()
		closeBody(resp)

		switch classified {
		case classifyClientError:
			// Never fails over on the caller's own mistake.
			return nil, nil, err
		case classifyAuthError:
			if refreshErr := c.store.ForceRefresh(ctx, cred.ID); refreshErr == nil {
				guard2 := c.store.ConnectionGuard(cred)
				resp2, _, err2 := c.send(ctx, cred, cs)
				if err2 == nil {
					c.store.RecordSuccess(cred.ID)
					return resp2, guard2, nil
				}
				guard2.Release()
				closeBody(resp2)
			}
			c.store.RecordFailure(cred.ID)
			c.store.SwitchToNext()
			lastErr = err
		case classifyRateLimit:
			c.store.RecordFailure(cred.ID)
			c.store.SwitchToNext()
			lastErr = err
		default: // classifyUpstream
			c.store.RecordFailure(cred.ID)
			c.store.SwitchToNext()
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = gatewayerr.NewServiceUnavailable("no upstream credential available")
	}
	telemetry.RecordErrorOnSpan(span, lastErr)
	return nil, nil, lastErr
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
}

type classification int

const (
	classifyUpstream classification = iota
	classifyAuthError
	classifyRateLimit
	classifyClientError
)

func (c *Client) send(ctx context.Context, cred *credentials.Credential, cs ConversationState) (*http.Response, classification, error) {
	body := ToWireRequest(cs, cred.ProfileARN)

	resp, err := c.http.DoStream(ctx, internalhttp.Request{
		Method: http.MethodPost,
		Path:   "/generateAssistantResponse",
		Headers: map[string]string{
			"Authorization": "Bearer " + cred.AccessToken,
		},
		Body: body,
	})
	if err != nil {
		return nil, classifyUpstream, gatewayerr.NewUpstreamError(err, "upstream request failed")
	}

	switch {
	case resp.StatusCode == 400:
		return resp, classifyClientError, gatewayerr.NewInvalidRequest("upstream rejected request")
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return resp, classifyAuthError, gatewayerr.NewAuthenticationError("upstream authentication failed")
	case resp.StatusCode == 429:
		return resp, classifyRateLimit, gatewayerr.NewRateLimit("upstream rate limited")
	case resp.StatusCode >= 500:
		return resp, classifyUpstream, gatewayerr.NewUpstreamError(nil, "upstream returned %d", resp.StatusCode)
	}

	return resp, classifyUpstream, nil
}

// --- credentials.UpstreamAuth implementation ---

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
	ProfileARN  string `json:"profileArn,omitempty"`
}

type balanceResponse struct {
	CurrentUsage      float64 `json:"currentUsage"`
	UsageLimit        float64 `json:"usageLimit"`
	SubscriptionTitle string  `json:"subscriptionTitle"`
	NextResetDate     string  `json:"nextResetDate"`
}

// Refresh implements credentials.UpstreamAuth, calling the upstream's
// token-refresh endpoint under a 300s hard timeout with backoff retry.
func (c *Client) Refresh(ctx context.Context, cred *credentials.Credential) error {
	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	var parsed refreshResponse
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		return c.http.DoJSON(ctx, internalhttp.Request{
			Method: http.MethodPost,
			Path:   refreshPathForMethod(cred.AuthMethod),
			Body: map[string]string{
				"refreshToken": cred.RefreshToken,
			},
		}, &parsed)
	})
	if err != nil {
		return gatewayerr.NewAuthenticationError("refresh failed: %v", err)
	}

	cred.AccessToken = parsed.AccessToken
	cred.AccessTokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	if cred.AuthMethod == credentials.AuthIDC && parsed.ProfileARN != "" {
		cred.ProfileARN = parsed.ProfileARN
	}
	return nil
}

// Balance implements credentials.UpstreamAuth, querying the upstream's
// usage endpoint.
func (c *Client) Balance(ctx context.Context, cred *credentials.Credential) (credentials.Usage, error) {
	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	var parsed balanceResponse
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		return c.http.DoJSON(ctx, internalhttp.Request{
			Method: http.MethodGet,
			Path:   "/usage",
			Headers: map[string]string{
				"Authorization": "Bearer " + cred.AccessToken,
			},
		}, &parsed)
	})
	if err != nil {
		return credentials.Usage{}, gatewayerr.NewUpstreamError(err, "balance query failed")
	}

	reset, _ := time.Parse(time.RFC3339, parsed.NextResetDate)
	return credentials.Usage{
		CurrentUsage:      parsed.CurrentUsage,
		UsageLimit:        parsed.UsageLimit,
		SubscriptionTitle: parsed.SubscriptionTitle,
		NextResetDate:     reset,
	}, nil
}

func refreshPathForMethod(m credentials.AuthMethod) string {
	if m == credentials.AuthIDC {
		return "/refreshIdcToken"
	}
	return "/refreshSocialToken"
}
