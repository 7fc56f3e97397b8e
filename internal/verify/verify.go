// Package verify applies rep review actions to detected patterns. Review is
// an overlay: it edits identity and review fields only and never touches the
// amount and occurrence statistics the detector snapshotted.
package verify

import (
	"strings"

	"statement-intel-service/internal/models"
	"statement-intel-service/pkg/errors"
)

// Update is a partial edit to one pattern's review state. Nil fields are
// left unchanged.
type Update struct {
	DescriptionPattern *string           `json:"description_pattern"`
	Category           *models.Category  `json:"category"`
	Frequency          *models.Frequency `json:"frequency"`
	Verified           *bool             `json:"verified"`
	RepNotes           *string           `json:"rep_notes"`
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.DescriptionPattern == nil && u.Category == nil &&
		u.Frequency == nil && u.Verified == nil && u.RepNotes == nil
}

// Validate checks the update's field values without applying them.
func (u Update) Validate() error {
	if u.DescriptionPattern != nil && strings.TrimSpace(*u.DescriptionPattern) == "" {
		return errors.ValidationError(errors.CodeInvalidValue, "description_pattern", *u.DescriptionPattern)
	}
	if u.Category != nil && !u.Category.IsValid() {
		return errors.ValidationError(errors.CodeInvalidValue, "category", string(*u.Category))
	}
	if u.Frequency != nil && !u.Frequency.IsValid() {
		return errors.ValidationError(errors.CodeInvalidValue, "frequency", string(*u.Frequency))
	}
	return nil
}

// Apply writes the update onto the pattern. A correction to the pattern's
// identity fields counts as review, so any edit marks the pattern verified
// unless the update says otherwise explicitly.
func Apply(p *models.RecurringPattern, u Update) error {
	if err := u.Validate(); err != nil {
		return err
	}

	edited := false
	if u.DescriptionPattern != nil {
		p.DescriptionPattern = strings.TrimSpace(*u.DescriptionPattern)
		edited = true
	}
	if u.Category != nil {
		p.Category = *u.Category
		p.IsMCA = *u.Category == models.CategoryMCALender
		edited = true
	}
	if u.Frequency != nil {
		p.Frequency = *u.Frequency
		edited = true
	}
	if u.RepNotes != nil {
		p.RepNotes = *u.RepNotes
		edited = true
	}

	switch {
	case u.Verified != nil:
		p.Verified = *u.Verified
	case edited:
		p.Verified = true
	}
	return nil
}

// AllVerified reports whether every pattern has been reviewed. An empty set
// is vacuously verified; there is nothing left to review.
func AllVerified(patterns []*models.RecurringPattern) bool {
	for _, p := range patterns {
		if !p.Verified {
			return false
		}
	}
	return true
}

// CarryForward copies review state from a prior detection run onto freshly
// detected patterns, matched by stable group key. Review work survives a
// re-detection as long as the group still exists.
func CarryForward(fresh, prior []*models.RecurringPattern) {
	byKey := make(map[string]*models.RecurringPattern, len(prior))
	for _, p := range prior {
		byKey[p.GroupKey()] = p
	}
	for _, p := range fresh {
		old, ok := byKey[p.GroupKey()]
		if !ok {
			continue
		}
		p.Verified = old.Verified
		p.RepNotes = old.RepNotes
	}
}
