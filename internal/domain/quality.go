package domain

import "strings"

type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// EncodeLevel maps a named tier to a JPEG quality in [1,100].
// Unknown tiers encode as medium.
func (q Quality) EncodeLevel() int {
	switch q {
	case QualityLow:
		return 50
	case QualityHigh:
		return 85
	case QualityUltra:
		return 95
	default:
		return 70
	}
}

func ParseQuality(s string) Quality {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityLow, QualityMedium, QualityHigh, QualityUltra:
		return q
	default:
		return QualityMedium
	}
}
