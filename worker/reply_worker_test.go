package worker

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"linkreach/utils"
)

func TestCorrelationTokenRegex(t *testing.T) {
	body := "Re: votre demande\n\n> ref 7-1203-1773480413 merci\nCordialement"
	assert.Equal(t, "7-1203-1773480413", correlationTokenRe.FindString(body))

	// Tokens produced by the enrollment path must round-trip.
	token := utils.CorrelationToken(12, 99, time.Unix(1773480413, 0))
	assert.Equal(t, token, correlationTokenRe.FindString("quoted: "+token+" end"))
}

func fakeIMAPMessage(seq uint32, section *imap.BodySectionName, raw string) *imap.Message {
	msg := &imap.Message{SeqNum: seq}
	if raw != "" {
		msg.Body = map[*imap.BodySectionName]imap.Literal{
			section: bytes.NewBufferString(raw),
		}
	}
	return msg
}

// Messages whose processing fails must stay unread so the next sweep
// picks them up again; only cleanly handled ones are flagged.
func TestDrainMessagesLeavesFailuresUnread(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	rw := &ReplyWorker{Logger: logger}

	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 3)
	messages <- fakeIMAPMessage(1, section, "From: editor@example.fr\r\nSubject: Re: partenariat\r\n\r\n")
	messages <- fakeIMAPMessage(2, section, "totally broken, not a mail message")
	messages <- fakeIMAPMessage(3, section, "")
	close(messages)

	processed := rw.drainMessages(context.Background(), messages, section)

	assert.True(t, processed.Contains(1), "empty-body reply is handled and flagged")
	assert.False(t, processed.Contains(2), "unparseable reply stays unread")
	assert.True(t, processed.Contains(3), "body-less fetch result is skipped and flagged")
}

func TestCorrelationTokenRegexRejectsNoise(t *testing.T) {
	for _, text := range []string{
		"call me at 555-1234",
		"order 2024-01-15 shipped",
		"version 1.2.3",
		"",
	} {
		assert.Empty(t, correlationTokenRe.FindString(text), "input %q", text)
	}
}
