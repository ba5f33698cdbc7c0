package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"
	"gorm.io/gorm"

	"linkreach/models"
)

// VerifyResult is the outcome of checking one claimed placement.
type VerifyResult struct {
	Found      bool   `json:"found"`
	LinkType   string `json:"link_type"`
	IsHidden   bool   `json:"is_hidden"`
	AnchorText string `json:"anchor_text"`
	HTTPStatus int    `json:"http_status"`
}

const (
	verifyTimeout    = 20 * time.Second
	maxResponseBytes = 2 << 20 // 2 MB page cap
	verifyUserAgent  = "Mozilla/5.0 (compatible; LinkReachBot/1.0; +https://linkreach.io/bot)"

	// FreshnessWindow is how long a verification result stays trusted
	// before the link-loss sweep rechecks it.
	FreshnessWindow = 7 * 24 * time.Hour
)

// CSS patterns that hide a link from readers while keeping it in the DOM.
var hiddenStylePatterns = []*regexp.Regexp{
	regexp.MustCompile(`display\s*:\s*none`),
	regexp.MustCompile(`visibility\s*:\s*hidden`),
	regexp.MustCompile(`font-size\s*:\s*0`),
	regexp.MustCompile(`opacity\s*:\s*0(?:\.0+)?(?:\s|;|$)`),
	regexp.MustCompile(`height\s*:\s*0`),
	regexp.MustCompile(`width\s*:\s*0`),
	regexp.MustCompile(`(?:left|top|text-indent)\s*:\s*-\d{3,}`),
}

// BacklinkVerifier fetches claimed pages, confirms link presence and
// attributes, and detects regressions on a schedule.
type BacklinkVerifier struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	http *http.Client

	// RequestDelay spaces successive fetches in the sweep so target
	// hosts are not hammered.
	RequestDelay time.Duration
}

func NewBacklinkVerifier(db *gorm.DB, logger *logrus.Logger) *BacklinkVerifier {
	return &BacklinkVerifier{
		DB:           db,
		Logger:       logger,
		http:         &http.Client{Timeout: verifyTimeout},
		RequestDelay: 2 * time.Second,
	}
}

// Verify fetches the claimed page, inspects its anchors and records the
// outcome on the backlink row plus an audit event. Re-running on the
// same state writes the same result; flips are logged each direction.
// Unreachable pages (no response, 5xx) return an error and leave the
// row untouched; a reachable page without the link counts as a loss.
func (bv *BacklinkVerifier) Verify(ctx context.Context, backlink *models.Backlink) (*VerifyResult, error) {
	body, status, err := bv.fetch(ctx, backlink.PageURL)
	result := &VerifyResult{HTTPStatus: status}
	if err != nil {
		// No response or a server-side failure says nothing about the
		// link itself; surface the error and let the queue retry
		// instead of recording a loss.
		if status == 0 || status >= 500 {
			return nil, err
		}
		bv.Logger.WithError(err).WithField("page", backlink.PageURL).Warn("backlink page gone")
	} else {
		result = InspectPage(body, backlink.TargetURL)
		result.HTTPStatus = status
	}

	if err := bv.persist(backlink, result); err != nil {
		return nil, err
	}
	return result, nil
}

// fetch GETs the page with a bounded timeout, size cap and polite
// user agent. An http:// page that fails is retried over https.
func (bv *BacklinkVerifier) fetch(ctx context.Context, pageURL string) ([]byte, int, error) {
	body, status, err := bv.fetchOnce(ctx, pageURL)
	if err == nil {
		return body, status, nil
	}
	if strings.HasPrefix(pageURL, "http://") {
		upgraded := "https://" + strings.TrimPrefix(pageURL, "http://")
		return bv.fetchOnce(ctx, upgraded)
	}
	return nil, status, err
}

func (bv *BacklinkVerifier) fetchOnce(ctx context.Context, pageURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("verify: bad url %q: %w", pageURL, err)
	}
	req.Header.Set("User-Agent", verifyUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := bv.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("verify: fetch %q: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, fmt.Errorf("verify: %q returned %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("verify: read %q: %w", pageURL, err)
	}
	return body, resp.StatusCode, nil
}

// InspectPage parses the HTML and looks for an anchor pointing at the
// target URL (host+path match). rel precedence: sponsored > ugc >
// nofollow > dofollow; a page-level meta robots nofollow downgrades an
// otherwise-dofollow link.
func InspectPage(body []byte, targetURL string) *VerifyResult {
	result := &VerifyResult{}

	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return result
	}

	targetHost, targetPath := hostAndPath(targetURL)
	if targetHost == "" {
		return result
	}

	pageNofollow := hasMetaNofollow(doc)

	var walk func(n *html.Node, ancestorsHidden bool)
	walk = func(n *html.Node, ancestorsHidden bool) {
		hidden := ancestorsHidden || styleHidden(attr(n, "style"))

		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			host, path := hostAndPath(href)
			if host == targetHost && path == targetPath {
				if !result.Found || !hidden {
					result.Found = true
					result.AnchorText = strings.TrimSpace(nodeText(n))
					result.IsHidden = hidden
					result.LinkType = relLinkType(attr(n, "rel"))
					if result.LinkType == models.LinkDofollow && pageNofollow {
						result.LinkType = models.LinkNofollow
					}
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, hidden)
		}
	}
	walk(doc, false)

	return result
}

// persist records the result in one transaction: row update plus a
// BACKLINK_VERIFIED or LINK_LOST event.
func (bv *BacklinkVerifier) persist(backlink *models.Backlink, result *VerifyResult) error {
	now := time.Now().UTC()
	wasLive := backlink.IsLive

	return bv.DB.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"is_verified":      true,
			"is_live":          result.Found,
			"last_verified_at": now,
			"http_status":      result.HTTPStatus,
		}
		if result.Found {
			updates["link_type"] = result.LinkType
			updates["anchor_text"] = result.AnchorText
			updates["is_hidden"] = result.IsHidden
			updates["lost_at"] = nil
		} else if wasLive {
			updates["lost_at"] = now
		}
		if err := tx.Model(&models.Backlink{}).Where("id = ?", backlink.ID).
			Updates(updates).Error; err != nil {
			return err
		}

		eventType := models.EventBacklinkVerified
		if !result.Found && wasLive {
			eventType = models.EventLinkLost
		}
		if err := models.AppendEvent(tx, &models.Event{
			ProspectID:  backlink.ProspectID,
			EventType:   eventType,
			EventSource: models.SourceVerifier,
			Data: map[string]any{
				"backlink_id": backlink.ID,
				"page_url":    backlink.PageURL,
				"found":       result.Found,
				"link_type":   result.LinkType,
				"is_hidden":   result.IsHidden,
				"http_status": result.HTTPStatus,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		backlink.IsLive = result.Found
		backlink.IsVerified = true
		backlink.LastVerifiedAt = &now

		if result.Found {
			return bv.markVerified(tx, backlink.ProspectID)
		}
		return nil
	})
}

// markVerified advances the prospect to LINK_VERIFIED when a placement
// is confirmed and the prospect was waiting on one.
func (bv *BacklinkVerifier) markVerified(tx *gorm.DB, prospectID uint) error {
	var prospect models.Prospect
	if err := tx.First(&prospect, prospectID).Error; err != nil {
		return err
	}
	switch prospect.Status {
	case models.StatusWon, models.StatusLinkPending, models.StatusLinkLost:
		if err := tx.Model(&models.Prospect{}).Where("id = ?", prospectID).
			Update("status", models.StatusLinkVerified).Error; err != nil {
			return err
		}
	}
	return nil
}

// DetectLinkLoss re-verifies stale or never-verified backlinks and,
// when the last live backlink for a prospect disappears, flips the
// prospect to LINK_LOST exactly once.
func (bv *BacklinkVerifier) DetectLinkLoss(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-FreshnessWindow)

	var backlinks []models.Backlink
	if err := bv.DB.
		Where("last_verified_at IS NULL OR last_verified_at < ?", cutoff).
		Order("last_verified_at asc nulls first").
		Find(&backlinks).Error; err != nil {
		return fmt.Errorf("link-loss sweep: %w", err)
	}

	bv.Logger.WithField("count", len(backlinks)).Info("link-loss sweep started")

	for i := range backlinks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		backlink := &backlinks[i]
		wasLive := backlink.IsLive

		result, err := bv.Verify(ctx, backlink)
		if err != nil {
			bv.Logger.WithError(err).WithField("backlink_id", backlink.ID).Warn("sweep verification failed")
			continue
		}

		if wasLive && !result.Found {
			if err := bv.handleLoss(backlink); err != nil {
				bv.Logger.WithError(err).WithField("backlink_id", backlink.ID).Error("link-loss handling failed")
			}
		}

		if i < len(backlinks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(bv.RequestDelay):
			}
		}
	}
	return nil
}

// handleLoss flips the prospect to LINK_LOST when no live backlink
// remains. Terminal prospects (DO_NOT_CONTACT, LOST) are left alone.
func (bv *BacklinkVerifier) handleLoss(backlink *models.Backlink) error {
	return bv.DB.Transaction(func(tx *gorm.DB) error {
		var liveCount int64
		if err := tx.Model(&models.Backlink{}).
			Where("prospect_id = ? AND is_live = ?", backlink.ProspectID, true).
			Count(&liveCount).Error; err != nil {
			return err
		}
		if liveCount > 0 {
			return nil
		}

		var prospect models.Prospect
		if err := tx.First(&prospect, backlink.ProspectID).Error; err != nil {
			return err
		}
		if prospect.Status.IsTerminal() || prospect.Status == models.StatusLinkLost {
			return nil
		}

		if err := tx.Model(&models.Prospect{}).Where("id = ?", prospect.ID).
			Update("status", models.StatusLinkLost).Error; err != nil {
			return err
		}

		return models.AppendEvent(tx, &models.Event{
			ProspectID:  prospect.ID,
			EventType:   models.EventLinkLost,
			EventSource: models.SourceVerifier,
			Data: map[string]any{
				"backlink_id": backlink.ID,
				"reason":      "all_links_lost",
			},
		})
	})
}

// --- HTML helpers ---

func attr(n *html.Node, name string) string {
	if n.Type != html.ElementNode {
		return ""
	}
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, name) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}

func styleHidden(style string) bool {
	if style == "" {
		return false
	}
	style = strings.ToLower(style)
	for _, pattern := range hiddenStylePatterns {
		if pattern.MatchString(style) {
			return true
		}
	}
	return false
}

// relLinkType maps a rel attribute to the strongest qualifier present:
// sponsored > ugc > nofollow > dofollow.
func relLinkType(rel string) string {
	rel = strings.ToLower(rel)
	fields := strings.FieldsFunc(rel, func(r rune) bool { return r == ' ' || r == ',' })
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	switch {
	case set["sponsored"]:
		return models.LinkSponsored
	case set["ugc"]:
		return models.LinkUGC
	case set["nofollow"]:
		return models.LinkNofollow
	default:
		return models.LinkDofollow
	}
}

func hasMetaNofollow(doc *html.Node) bool {
	var found bool
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "meta" {
			if strings.EqualFold(attr(n, "name"), "robots") &&
				strings.Contains(strings.ToLower(attr(n, "content")), "nofollow") {
				found = true
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return found
}

// hostAndPath canonicalizes a URL for link matching: lowercased host
// without www., path without trailing slash.
func hostAndPath(raw string) (string, string) {
	if raw == "" {
		return "", ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	path := strings.TrimSuffix(u.Path, "/")
	return host, path
}
