package usecase

import (
	"fmt"

	"anon_relay_bot/internal/pkg/relay/domain"
)

const albumMarker = "📦 Media Album"

// AuditHeader renders the sender identity block that precedes every audit copy.
func AuditHeader(s domain.Sender) string {
	username := s.Username
	if username == "" {
		username = "N/A"
	}

	return fmt.Sprintf("🕵️ Audit Log\n"+
		"👤 Name: %s\n"+
		"🔗 Username: @%s\n"+
		"🆔 User ID: %d\n\n", s.FirstName, username, s.ID)
}

func albumAuditText(header string) string {
	return header + albumMarker
}
