package utils

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

var (
	_ LLMClient          = (*fakeLLM)(nil)
	_ MailerClient       = (*fakeMailer)(nil)
	_ MailerClient       = (*Mailer)(nil)
	_ SuppressionChecker = (*fakeSuppressions)(nil)
	_ SuppressionChecker = (*SuppressionGuard)(nil)
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// fakeLLM returns canned classification and personalization results.
type fakeLLM struct {
	result          *CategoryResult
	personalization string
	err             error
}

func (f *fakeLLM) CategorizeReply(_ context.Context, _, _ string) (*CategoryResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeLLM) Personalize(_ context.Context, _, _, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.personalization, nil
}

// fakeMailer records calls so tests can assert ordering and payloads.
type fakeMailer struct {
	created     []map[string]string
	existing    *Subscriber
	createErr   error
	searchCalls int
}

func (f *fakeMailer) CreateSubscriber(_ context.Context, _ string, fields map[string]string) (*Subscriber, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, fields)
	return &Subscriber{UID: "sub-1", Email: fields["EMAIL"], Status: "unconfirmed"}, nil
}

func (f *fakeMailer) SearchSubscriber(_ context.Context, _, _ string) (*Subscriber, error) {
	f.searchCalls++
	return f.existing, nil
}

func (f *fakeMailer) UpdateSubscriber(_ context.Context, _, _ string, _ map[string]string) error {
	return nil
}

func (f *fakeMailer) UnsubscribeSubscriber(_ context.Context, _, _ string) error {
	return nil
}

type fakeSuppressions struct {
	suppressed map[string]bool
	err        error
}

func (f *fakeSuppressions) IsSuppressed(email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.suppressed[email], nil
}
