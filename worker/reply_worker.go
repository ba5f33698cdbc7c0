package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/config"
	"linkreach/models"
	"linkreach/queue"
	"linkreach/utils"
)

// Correlation tokens look like {campaignID}-{prospectID}-{unix}.
var correlationTokenRe = regexp.MustCompile(`\b\d+-\d+-\d{9,11}\b`)

// ReplyWorker polls the shared reply inbox over IMAP and feeds matched
// replies into the classifier. One in-flight check at a time: the cron
// side enqueues, the single consumer drains.
type ReplyWorker struct {
	DB         *gorm.DB
	Queue      *queue.Queue
	Classifier *utils.ReplyClassifier
	IMAP       config.IMAPConfig
	Logger     *logrus.Logger

	Interval time.Duration
}

func NewReplyWorker(db *gorm.DB, q *queue.Queue, classifier *utils.ReplyClassifier, imapCfg config.IMAPConfig, logger *logrus.Logger) *ReplyWorker {
	return &ReplyWorker{
		DB:         db,
		Queue:      q,
		Classifier: classifier,
		IMAP:       imapCfg,
		Logger:     logger,
		Interval:   5 * time.Minute,
	}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	rw.Logger.Info("reply worker started")

	go rw.Queue.Consume(ctx, queue.QueueReplyCheck, rw.handle)

	ticker := time.NewTicker(rw.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			rw.Logger.Info("reply worker shutting down")
			return
		case <-ticker.C:
			if err := rw.Queue.Enqueue(ctx, queue.QueueReplyCheck, queue.TypeIMAPCheck, nil); err != nil {
				rw.Logger.WithError(err).Warn("failed to enqueue reply check")
			}
		}
	}
}

func (rw *ReplyWorker) handle(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.TypeIMAPCheck {
		rw.Logger.WithField("type", job.Type).Warn("unexpected job on reply-check queue")
		return nil
	}
	if rw.IMAP.Host == "" {
		rw.Logger.Debug("imap not configured, skipping reply check")
		return nil
	}
	return rw.fetchReplies(ctx)
}

func (rw *ReplyWorker) fetchReplies(ctx context.Context) error {
	c, err := rw.dial()
	if err != nil {
		return err
	}
	defer c.Logout()

	if err := c.Login(rw.IMAP.Username, rw.IMAP.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	mailbox := rw.IMAP.Mailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return fmt.Errorf("imap select %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("imap search: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	processed := rw.drainMessages(ctx, messages, section)

	if err := <-done; err != nil {
		return fmt.Errorf("imap fetch: %w", err)
	}

	// Only successfully handled replies are marked read; failures stay
	// unseen so the next sweep retries them.
	if len(processed.Set) > 0 {
		flagOp := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := c.Store(processed, flagOp, []interface{}{imap.SeenFlag}, nil); err != nil {
			rw.Logger.WithError(err).Warn("failed to mark replies seen")
		}
	}
	return nil
}

// drainMessages consumes the fetch channel until it closes and returns
// the sequence numbers whose replies were handled without error.
func (rw *ReplyWorker) drainMessages(ctx context.Context, messages <-chan *imap.Message, section *imap.BodySectionName) *imap.SeqSet {
	processed := new(imap.SeqSet)
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		if err := rw.processMessage(ctx, msg, section); err != nil {
			rw.Logger.WithError(err).WithField("seq", msg.SeqNum).Warn("reply processing failed, leaving unread")
			continue
		}
		processed.AddNum(msg.SeqNum)
	}
	return processed
}

func (rw *ReplyWorker) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", rw.IMAP.Host, rw.IMAP.Port)
	tlsConfig := &tls.Config{ServerName: rw.IMAP.Host}

	switch strings.ToUpper(rw.IMAP.Encryption) {
	case "SSL", "TLS":
		c, err := client.DialTLS(addr, tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("imap dial tls: %w", err)
		}
		return c, nil
	case "STARTTLS":
		c, err := client.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("imap dial: %w", err)
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("imap starttls: %w", err)
		}
		return c, nil
	default:
		c, err := client.Dial(addr)
		if err != nil {
			return nil, fmt.Errorf("imap dial: %w", err)
		}
		return c, nil
	}
}

func (rw *ReplyWorker) processMessage(ctx context.Context, msg *imap.Message, section *imap.BodySectionName) error {
	body := msg.GetBody(section)
	if body == nil {
		return nil
	}

	mr, err := mail.CreateReader(body)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	from := ""
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		from = addrs[0].Address
	}
	subject, _ := mr.Header.Subject()

	text := rw.extractText(mr)
	if strings.TrimSpace(text) == "" {
		rw.Logger.WithField("from", from).Debug("reply without text body, skipping")
		return nil
	}

	enrollment := rw.matchEnrollment(from, subject+"\n"+text)
	if enrollment == nil {
		rw.Logger.WithFields(logrus.Fields{
			"from":    from,
			"subject": subject,
		}).Warn("reply matched no enrollment, skipping")
		return nil
	}

	_, err = rw.Classifier.Categorize(ctx, enrollment.ProspectID, enrollment.ID, text)
	return err
}

func (rw *ReplyWorker) extractText(mr *mail.Reader) string {
	var sb strings.Builder
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok {
			data, err := io.ReadAll(io.LimitReader(part.Body, 64<<10))
			if err == nil {
				sb.Write(data)
				sb.WriteByte('\n')
			}
		}
	}
	return sb.String()
}

// matchEnrollment resolves a reply to an enrollment: the correlation
// token quoted anywhere in the thread wins, else the sender address
// maps to a contact's most recent enrollment.
func (rw *ReplyWorker) matchEnrollment(from, text string) *models.Enrollment {
	if token := correlationTokenRe.FindString(text); token != "" {
		var enrollment models.Enrollment
		if err := rw.DB.Where("campaign_ref = ?", token).First(&enrollment).Error; err == nil {
			return &enrollment
		}
	}

	if from == "" {
		return nil
	}
	var contact models.Contact
	if err := rw.DB.Where("email_normalized = ?", utils.NormalizeEmail(from)).First(&contact).Error; err != nil {
		return nil
	}
	var enrollment models.Enrollment
	if err := rw.DB.Where("contact_id = ?", contact.ID).Order("enrolled_at desc").First(&enrollment).Error; err != nil {
		return nil
	}
	return &enrollment
}
