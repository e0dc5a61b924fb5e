// Package risk computes the heuristic risk score of an application.
//
// Score is pure domain logic: no I/O, no clock. Callers pass "now".
package risk

import (
	"math"
	"strings"
	"time"

	"kycflow/internal/kyc/models"
)

const (
	day  = 24 * time.Hour
	year = 365 * day

	expirySoonDays   = 30
	expiryNearDays   = 90
	expirySoonWeight = 0.3
	expiryNearWeight = 0.1

	biometricThreshold = 0.8
	confidenceWeight   = 0.2
	matchWeight        = 0.2
	livenessWeight     = 0.3

	minAge    = 18
	maxAge    = 80
	ageWeight = 0.2

	lowCeiling    = 0.3
	mediumCeiling = 0.7
)

// Result is the bounded score and its tier.
type Result struct {
	Score float64
	Level models.RiskLevel
}

// Score averages the raw risk over the dimensions present on the
// application. The age dimension always counts, so the divisor is never zero.
func Score(app *models.Application, now time.Time) Result {
	var raw float64
	factors := 0

	if doc := app.DocumentInfo; doc != nil {
		if expiry, ok := parseDate(doc.ExpiryDate); ok {
			daysLeft := float64(expiry.Sub(now)) / float64(day)
			switch {
			case daysLeft < expirySoonDays:
				raw += expirySoonWeight
			case daysLeft < expiryNearDays:
				raw += expiryNearWeight
			}
		}
		factors++
	}

	if f := app.FacialVerification; f != nil {
		if f.Confidence < biometricThreshold {
			raw += confidenceWeight
		}
		if f.MatchScore < biometricThreshold {
			raw += matchWeight
		}
		if !f.LivenessCheck {
			raw += livenessWeight
		}
		factors++
	}

	if dob, ok := parseDate(app.PersonalInfo.DateOfBirth); ok {
		age := float64(now.Sub(dob)) / float64(year)
		if age < minAge || age > maxAge {
			raw += ageWeight
		}
	}
	factors++

	score := math.Min(raw/float64(max(factors, 1)), 1)
	return Result{Score: score, Level: LevelFor(score)}
}

// LevelFor maps a score to its tier: <= 0.3 low, <= 0.7 medium, else high.
func LevelFor(score float64) models.RiskLevel {
	switch {
	case score <= lowCeiling:
		return models.RiskLow
	case score <= mediumCeiling:
		return models.RiskMedium
	default:
		return models.RiskHigh
	}
}

// parseDate accepts date-only values (midnight UTC) and RFC 3339 timestamps.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

