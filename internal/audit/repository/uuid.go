package repository

import "github.com/google/uuid"

// parseUUID wraps uuid.Parse for the MySQL repositories, which store UUIDs
// as CHAR(36).
func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
