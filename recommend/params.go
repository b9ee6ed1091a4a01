// Package recommend generates dish category recommendations through an LLM
// and validates the structured result.
package recommend

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
)

// ItemCount is the number of recommendations every response must contain.
const ItemCount = 10

var (
	locationPattern    = regexp.MustCompile(`^-?\d{1,2}(?:\.\d+)?,-?\d{1,3}(?:\.\d+)?$`)
	languageTagPattern = regexp.MustCompile(`^[a-z]{2,3}(-[A-Z]{2})?$`)
)

// ErrInvalidParams wraps every Params validation failure.
var ErrInvalidParams = errors.New("invalid recommendation params")

// Params is the user context a recommendation is generated for.
type Params struct {
	// Location is "lat,lng" in decimal degrees.
	Location     string   `json:"location" yaml:"location"`
	TimeSlot     string   `json:"timeSlot,omitempty" yaml:"timeSlot"`
	Scene        string   `json:"scene,omitempty" yaml:"scene"`
	Mood         string   `json:"mood,omitempty" yaml:"mood"`
	Restrictions []string `json:"restrictions,omitempty" yaml:"restrictions"`
	// Distance is in meters.
	Distance  int `json:"distance,omitempty" yaml:"distance"`
	BudgetMin int `json:"budgetMin,omitempty" yaml:"budgetMin"`
	BudgetMax int `json:"budgetMax,omitempty" yaml:"budgetMax"`
	// LanguageTag is a BCP 47 tag such as "ja-JP"; empty means "en".
	LanguageTag string `json:"languageTag,omitempty" yaml:"languageTag"`
}

// Validate checks the request fields the service depends on.
func (p Params) Validate() error {
	if !locationPattern.MatchString(p.Location) {
		return fmt.Errorf("%w: location must be \"lat,lng\" decimal format", ErrInvalidParams)
	}
	if p.LanguageTag != "" && !languageTagPattern.MatchString(p.LanguageTag) {
		return fmt.Errorf("%w: languageTag must follow IETF BCP 47 format (e.g., en-US, ja-JP)", ErrInvalidParams)
	}
	if p.Distance < 0 || p.BudgetMin < 0 || p.BudgetMax < 0 {
		return fmt.Errorf("%w: distance and budget must not be negative", ErrInvalidParams)
	}
	if p.BudgetMax > 0 && p.BudgetMin > p.BudgetMax {
		return fmt.Errorf("%w: budgetMin exceeds budgetMax", ErrInvalidParams)
	}
	return nil
}

// Language returns the language tag with the "en" default applied.
func (p Params) Language() string {
	if p.LanguageTag == "" {
		return "en"
	}
	return p.LanguageTag
}

// CacheKey is a stable digest of the params. Restriction order does not
// change the key.
func (p Params) CacheKey() string {
	norm := p
	norm.LanguageTag = p.Language()
	norm.Restrictions = slices.Clone(p.Restrictions)
	slices.Sort(norm.Restrictions)
	b, _ := json.Marshal(norm)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
