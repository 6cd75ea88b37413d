// Package notify provides Notification Dispatcher implementations for the
// circulation ledger. Dispatch is best-effort by contract: implementations
// return an error for the caller to log, never retry on their own.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/unilib/circulation-go/circulation"
)

const (
	defaultRequestTimeout = 5 * time.Second

	headerContentType = "Content-Type"
	contentTypeJSON   = "application/json"
)

var (
	// ErrEmptyEndpoint is returned by NewWebhookDispatcher for a blank URL.
	ErrEmptyEndpoint = errors.New("webhook endpoint must not be empty")

	// ErrInvalidEndpoint is returned for an endpoint that does not parse.
	ErrInvalidEndpoint = errors.New("webhook endpoint is not a valid url")

	errMarshalFailed  = errors.New("marshaling notification failed")
	errDispatchFailed = errors.New("dispatching notification failed")
)

// message is the JSON body posted to the webhook endpoint.
type message struct {
	UserID   string            `json:"user_id"`
	Template string            `json:"template"`
	Payload  map[string]string `json:"payload,omitempty"`
	SentAt   time.Time         `json:"sent_at"`
}

// WebhookDispatcher posts each notification as a JSON document to a single
// HTTP endpoint, typically a messaging gateway.
type WebhookDispatcher struct {
	endpoint string
	client   *http.Client
	clock    func() time.Time
}

// WebhookOption defines a functional option for the WebhookDispatcher.
type WebhookOption func(*WebhookDispatcher) error

// WithHTTPClient replaces the default HTTP client, e.g. to tune timeouts.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(d *WebhookDispatcher) error {
		if client == nil {
			return errors.New("http client must not be nil")
		}

		d.client = client

		return nil
	}
}

// WithWebhookClock overrides the time source, mainly for tests.
func WithWebhookClock(clock func() time.Time) WebhookOption {
	return func(d *WebhookDispatcher) error {
		d.clock = clock
		return nil
	}
}

// NewWebhookDispatcher creates a dispatcher posting to endpoint with
// optional configuration.
func NewWebhookDispatcher(endpoint string, options ...WebhookOption) (*WebhookDispatcher, error) {
	if endpoint == "" {
		return nil, ErrEmptyEndpoint
	}

	if _, parseErr := url.ParseRequestURI(endpoint); parseErr != nil {
		return nil, errors.Join(ErrInvalidEndpoint, parseErr)
	}

	d := &WebhookDispatcher{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		clock:    time.Now,
	}

	for _, option := range options {
		if err := option(d); err != nil {
			return nil, err
		}
	}

	return d, nil
}

// Notify posts the notification and reports any transport or non-2xx
// failure to the caller.
func (d *WebhookDispatcher) Notify(ctx context.Context, userID uuid.UUID, kind circulation.TemplateKind, payload map[string]string) error {
	body, marshalErr := jsoniter.ConfigFastest.Marshal(message{
		UserID:   userID.String(),
		Template: string(kind),
		Payload:  payload,
		SentAt:   d.clock(),
	})
	if marshalErr != nil {
		return errors.Join(errMarshalFailed, marshalErr)
	}

	request, requestErr := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if requestErr != nil {
		return errors.Join(errDispatchFailed, requestErr)
	}
	request.Header.Set(headerContentType, contentTypeJSON)

	response, doErr := d.client.Do(request)
	if doErr != nil {
		return errors.Join(errDispatchFailed, doErr)
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return errors.Join(errDispatchFailed, fmt.Errorf("endpoint returned status %d", response.StatusCode))
	}

	return nil
}
