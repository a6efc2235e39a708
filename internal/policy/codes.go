package policy

import "github.com/supsol/poreview/internal/models"

// Audit type codes shared with the PO API.
const (
	AuditSendEmail      = 700
	AuditCall           = 800
	AuditText           = 900
	AuditVendorResponse = 1000
	AuditEscalate       = 1200
)

// Level is the ordinal position in the channel sequence.
type Level int

const (
	LevelEmail      Level = 1
	LevelMessage    Level = 2
	LevelCall       Level = 3
	LevelEscalation Level = 4
)

func (l Level) String() string {
	switch l {
	case LevelEmail:
		return "email"
	case LevelMessage:
		return "message"
	case LevelCall:
		return "call"
	case LevelEscalation:
		return "escalation"
	default:
		return "unknown"
	}
}

func CodeForLevel(l Level) int {
	switch l {
	case LevelMessage:
		return AuditText
	case LevelCall:
		return AuditCall
	case LevelEscalation:
		return AuditEscalate
	default:
		return AuditSendEmail
	}
}

// LevelForCode returns 0 for codes that are not outbound attempts.
func LevelForCode(code int) Level {
	switch code {
	case AuditSendEmail:
		return LevelEmail
	case AuditText:
		return LevelMessage
	case AuditCall:
		return LevelCall
	case AuditEscalate:
		return LevelEscalation
	default:
		return 0
	}
}

func ChannelForCode(code int) models.Channel {
	switch code {
	case AuditSendEmail:
		return models.ChannelEmail
	case AuditText:
		return models.ChannelMessage
	case AuditCall:
		return models.ChannelCall
	case AuditEscalate:
		return models.ChannelEscalation
	case AuditVendorResponse:
		return models.ChannelResponse
	default:
		return ""
	}
}

func IsOutbound(code int) bool {
	return LevelForCode(code) != 0
}

// ActionTitle is the short English label of an audit code.
func ActionTitle(code int) string {
	switch code {
	case AuditSendEmail:
		return "Approval reminder"
	case AuditText:
		return "Approval reminder (message)"
	case AuditCall:
		return "Phone follow-up requested"
	case AuditEscalate:
		return "Escalated to supporter"
	case AuditVendorResponse:
		return "Vendor response"
	default:
		return "Follow-up"
	}
}
