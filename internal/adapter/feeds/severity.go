package feeds

import (
	"strings"

	"github.com/crisislens/hazard-ingest-service/internal/domain"
)

// SeismicSeverity bands an earthquake magnitude. A nil magnitude means the
// network has not sized the quake yet; those default to moderate rather
// than low so an unreviewed quake is not rendered as harmless.
func SeismicSeverity(magnitude *float64) domain.Severity {
	if magnitude == nil {
		return domain.SeverityModerate
	}
	switch {
	case *magnitude >= 6.5:
		return domain.SeverityCritical
	case *magnitude >= 5.0:
		return domain.SeverityHigh
	case *magnitude >= 3.5:
		return domain.SeverityModerate
	default:
		return domain.SeverityLow
	}
}

// BrightnessSeverity bands a FIRMS detection brightness in Kelvin.
func BrightnessSeverity(brightness float64) domain.Severity {
	switch {
	case brightness >= 340:
		return domain.SeverityCritical
	case brightness >= 310:
		return domain.SeverityHigh
	case brightness >= 280:
		return domain.SeverityModerate
	default:
		return domain.SeverityLow
	}
}

// SentimentSeverity bands a sentiment score in [-1, 1]. Strongly negative
// chatter outranks neutral; positive chatter is explicitly low.
func SentimentSeverity(score float64) domain.Severity {
	switch {
	case score <= -0.6:
		return domain.SeverityCritical
	case score <= -0.3:
		return domain.SeverityHigh
	case score >= 0.4:
		return domain.SeverityLow
	default:
		return domain.SeverityModerate
	}
}

// DisasterSeverity bands a FEMA declaration by keyword over its incident
// type and title.
func DisasterSeverity(incidentType, title string) domain.Severity {
	text := strings.ToLower(incidentType + " " + title)
	switch {
	case strings.Contains(text, "hurricane"), strings.Contains(text, "pandemic"):
		return domain.SeverityCritical
	case strings.Contains(text, "fire"), strings.Contains(text, "tornado"),
		strings.Contains(text, "earthquake"):
		return domain.SeverityHigh
	case strings.Contains(text, "flood"), strings.Contains(text, "storm"):
		return domain.SeverityModerate
	default:
		return domain.SeverityLow
	}
}

// CallTypeSeverity bands a fire department call type by keyword.
func CallTypeSeverity(callType string) domain.Severity {
	text := strings.ToLower(callType)
	switch {
	case strings.Contains(text, "structure fire"), strings.Contains(text, "explosion"):
		return domain.SeverityCritical
	case strings.Contains(text, "fire"), strings.Contains(text, "rescue"),
		strings.Contains(text, "hazmat"):
		return domain.SeverityHigh
	case strings.Contains(text, "medical"), strings.Contains(text, "traffic"),
		strings.Contains(text, "alarm"):
		return domain.SeverityModerate
	default:
		return domain.SeverityLow
	}
}
