package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MailerClient is the narrow contract the lifecycle engines need from
// the mail-campaign provider.
type MailerClient interface {
	CreateSubscriber(ctx context.Context, listUID string, fields map[string]string) (*Subscriber, error)
	SearchSubscriber(ctx context.Context, listUID, email string) (*Subscriber, error)
	UpdateSubscriber(ctx context.Context, listUID, subscriberUID string, fields map[string]string) error
	UnsubscribeSubscriber(ctx context.Context, listUID, subscriberUID string) error
}

// Subscriber is the provider-side representation of an enrolled email.
type Subscriber struct {
	UID    string `json:"subscriber_uid"`
	Email  string `json:"email"`
	Status string `json:"status"`
}

// MailerAPIError carries the HTTP status of a failed provider call so
// the queue layer can distinguish transient (5xx) from permanent (4xx).
type MailerAPIError struct {
	Status int
	Body   string
}

func (e *MailerAPIError) Error() string {
	return fmt.Sprintf("mailer api: status %d: %s", e.Status, e.Body)
}

// Transient reports whether the failure is worth a retry.
func (e *MailerAPIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Mailer talks to the campaign provider's REST API with form-encoded
// bodies and an API-key header.
type Mailer struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewMailer(baseURL, apiKey string) *Mailer {
	return &Mailer{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *Mailer) CreateSubscriber(ctx context.Context, listUID string, fields map[string]string) (*Subscriber, error) {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}

	var out struct {
		Data Subscriber `json:"data"`
	}
	path := fmt.Sprintf("/lists/%s/subscribers", listUID)
	if err := m.do(ctx, http.MethodPost, path, form, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// SearchSubscriber returns nil without error when the email is not on
// the list; a 404 from the provider means "not registered".
func (m *Mailer) SearchSubscriber(ctx context.Context, listUID, email string) (*Subscriber, error) {
	var out struct {
		Data Subscriber `json:"data"`
	}
	path := fmt.Sprintf("/lists/%s/subscribers/search-by-email?EMAIL=%s", listUID, url.QueryEscape(email))
	err := m.do(ctx, http.MethodGet, path, nil, &out)
	if err != nil {
		var apiErr *MailerAPIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if out.Data.UID == "" {
		return nil, nil
	}
	return &out.Data, nil
}

func (m *Mailer) UpdateSubscriber(ctx context.Context, listUID, subscriberUID string, fields map[string]string) error {
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	path := fmt.Sprintf("/lists/%s/subscribers/%s", listUID, subscriberUID)
	return m.do(ctx, http.MethodPut, path, form, nil)
}

func (m *Mailer) UnsubscribeSubscriber(ctx context.Context, listUID, subscriberUID string) error {
	path := fmt.Sprintf("/lists/%s/subscribers/%s/unsubscribe", listUID, subscriberUID)
	return m.do(ctx, http.MethodPut, path, url.Values{}, nil)
}

func (m *Mailer) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("mailer request: %w", err)
	}
	req.Header.Set("X-Api-Key", m.apiKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("mailer call: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("mailer response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &MailerAPIError{Status: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("mailer decode: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
