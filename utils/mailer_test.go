package utils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailerCreateSubscriber(t *testing.T) {
	var gotPath, gotKey, gotContentType, gotEmail string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		gotContentType = r.Header.Get("Content-Type")
		require.NoError(t, r.ParseForm())
		gotEmail = r.PostForm.Get("EMAIL")

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"subscriber_uid":"abc123","email":"dev@example.com","status":"unconfirmed"}}`))
	}))
	defer server.Close()

	mailer := NewMailer(server.URL, "secret-key")
	sub, err := mailer.CreateSubscriber(context.Background(), "list-fr", map[string]string{
		"EMAIL": "dev@example.com",
		"NAME":  "Dev",
	})
	require.NoError(t, err)

	assert.Equal(t, "/lists/list-fr/subscribers", gotPath)
	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, "application/x-www-form-urlencoded", gotContentType)
	assert.Equal(t, "dev@example.com", gotEmail)
	assert.Equal(t, "abc123", sub.UID)
}

func TestMailerErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"EMAIL already exists"}`))
	}))
	defer server.Close()

	mailer := NewMailer(server.URL, "k")
	_, err := mailer.CreateSubscriber(context.Background(), "list-fr", map[string]string{"EMAIL": "x@y.com"})
	require.Error(t, err)

	var apiErr *MailerAPIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
	assert.False(t, apiErr.Transient())
}

func TestMailerAPIErrorTransient(t *testing.T) {
	assert.True(t, (&MailerAPIError{Status: 500}).Transient())
	assert.True(t, (&MailerAPIError{Status: 503}).Transient())
	assert.True(t, (&MailerAPIError{Status: 429}).Transient())
	assert.False(t, (&MailerAPIError{Status: 404}).Transient())
	assert.False(t, (&MailerAPIError{Status: 422}).Transient())
}

func TestMailerSearchSubscriberNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	mailer := NewMailer(server.URL, "k")
	sub, err := mailer.SearchSubscriber(context.Background(), "list-fr", "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, sub)
}

func TestMailerSearchSubscriberFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "dev@example.com", r.URL.Query().Get("EMAIL"))
		w.Write([]byte(`{"data":{"subscriber_uid":"abc123","email":"dev@example.com","status":"confirmed"}}`))
	}))
	defer server.Close()

	mailer := NewMailer(server.URL, "k")
	sub, err := mailer.SearchSubscriber(context.Background(), "list-fr", "dev@example.com")
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, "abc123", sub.UID)
	assert.Equal(t, "confirmed", sub.Status)
}
