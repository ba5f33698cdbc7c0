package utils

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"linkreach/models"
)

// Dedup rejection reasons.
const (
	DedupURLExists    = "url_exists"
	DedupDomainExists = "domain_exists"
)

// DedupResult describes whether an ingested URL collides with an
// existing prospect, and on what.
type DedupResult struct {
	IsDuplicate        bool                  `json:"is_duplicate"`
	Reason             string                `json:"reason,omitempty"`
	ExistingProspectID uint                  `json:"existing_prospect_id,omitempty"`
	ExistingStatus     models.ProspectStatus `json:"existing_status,omitempty"`
}

// DedupGate rejects duplicate URL/domain ingestion before a prospect is
// created. It is a soft optimization: on any internal error it fails
// open, and the unique constraints on prospects remain the backstop.
type DedupGate struct {
	DB     *gorm.DB
	Logger *logrus.Logger
}

func NewDedupGate(db *gorm.DB, logger *logrus.Logger) *DedupGate {
	return &DedupGate{DB: db, Logger: logger}
}

// Check looks up a raw URL first by normalized URL, then by registrable
// domain. URL-level matches take priority.
func (dg *DedupGate) Check(rawURL string) DedupResult {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		dg.Logger.WithError(err).WithField("url", rawURL).Warn("dedup: unparseable url, failing open")
		return DedupResult{}
	}
	domain, err := RegistrableDomain(normalized)
	if err != nil {
		dg.Logger.WithError(err).WithField("url", rawURL).Warn("dedup: no registrable domain, failing open")
		return DedupResult{}
	}

	var p models.Prospect
	err = dg.DB.Where("normalized_url = ?", normalized).First(&p).Error
	if err == nil {
		return DedupResult{IsDuplicate: true, Reason: DedupURLExists, ExistingProspectID: p.ID, ExistingStatus: p.Status}
	}
	if err != gorm.ErrRecordNotFound {
		dg.Logger.WithError(err).Warn("dedup: url lookup failed, failing open")
		return DedupResult{}
	}

	err = dg.DB.Where("domain = ?", domain).First(&p).Error
	if err == nil {
		return DedupResult{IsDuplicate: true, Reason: DedupDomainExists, ExistingProspectID: p.ID, ExistingStatus: p.Status}
	}
	if err != gorm.ErrRecordNotFound {
		dg.Logger.WithError(err).Warn("dedup: domain lookup failed, failing open")
	}
	return DedupResult{}
}

// CheckBatch resolves many URLs with two set-membership queries instead
// of 2N point lookups. Unparseable URLs come back not-duplicate.
func (dg *DedupGate) CheckBatch(rawURLs []string) map[string]DedupResult {
	results := make(map[string]DedupResult, len(rawURLs))

	normalizedByRaw := make(map[string]string, len(rawURLs))
	domainByRaw := make(map[string]string, len(rawURLs))
	var normalizedSet, domainSet []string

	for _, raw := range rawURLs {
		results[raw] = DedupResult{}
		normalized, err := NormalizeURL(raw)
		if err != nil {
			continue
		}
		domain, err := RegistrableDomain(normalized)
		if err != nil {
			continue
		}
		normalizedByRaw[raw] = normalized
		domainByRaw[raw] = domain
		normalizedSet = append(normalizedSet, normalized)
		domainSet = append(domainSet, domain)
	}

	if len(normalizedSet) == 0 {
		return results
	}

	var byURL []models.Prospect
	if err := dg.DB.Where("normalized_url IN ?", normalizedSet).Find(&byURL).Error; err != nil {
		dg.Logger.WithError(err).Warn("dedup: batch url lookup failed, failing open")
		return results
	}
	var byDomain []models.Prospect
	if err := dg.DB.Where("domain IN ?", domainSet).Find(&byDomain).Error; err != nil {
		dg.Logger.WithError(err).Warn("dedup: batch domain lookup failed, failing open")
		return results
	}

	urlHits := make(map[string]models.Prospect, len(byURL))
	for _, p := range byURL {
		urlHits[p.NormalizedURL] = p
	}
	domainHits := make(map[string]models.Prospect, len(byDomain))
	for _, p := range byDomain {
		domainHits[p.Domain] = p
	}

	for _, raw := range rawURLs {
		if p, ok := urlHits[normalizedByRaw[raw]]; ok {
			results[raw] = DedupResult{IsDuplicate: true, Reason: DedupURLExists, ExistingProspectID: p.ID, ExistingStatus: p.Status}
			continue
		}
		if p, ok := domainHits[domainByRaw[raw]]; ok {
			results[raw] = DedupResult{IsDuplicate: true, Reason: DedupDomainExists, ExistingProspectID: p.ID, ExistingStatus: p.Status}
		}
	}
	return results
}
