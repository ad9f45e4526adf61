package handler

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/cuongbtq/print-relay/internal/domain"
)

// DecodeJobCursor parses an opaque page cursor. An empty string means the first page.
func DecodeJobCursor(cursorStr string) (*domain.JobCursor, error) {
	if cursorStr == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursorStr)
	if err != nil {
		return nil, domain.NewValidationError("cursor", "is not a valid cursor")
	}

	decodedParts := strings.Split(string(decoded), "|")
	if len(decodedParts) != 2 {
		return nil, domain.NewValidationError("cursor", "is not a valid cursor")
	}

	var createdAt, jobID int64
	if _, err := fmt.Sscanf(decodedParts[0], "%d", &createdAt); err != nil {
		return nil, domain.NewValidationError("cursor", "has an invalid timestamp")
	}
	if _, err := fmt.Sscanf(decodedParts[1], "%d", &jobID); err != nil || jobID <= 0 {
		return nil, domain.NewValidationError("cursor", "has an invalid job id")
	}

	return &domain.JobCursor{
		CreatedAt: time.Unix(0, createdAt).UTC(),
		JobID:     jobID,
	}, nil
}

// EncodeJobCursor renders a cursor for the nextCursor field; nil encodes as ""
func EncodeJobCursor(cursor *domain.JobCursor) string {
	if cursor == nil {
		return ""
	}
	cs := fmt.Sprintf("%d|%d", cursor.CreatedAt.UnixNano(), cursor.JobID)
	return base64.RawURLEncoding.EncodeToString([]byte(cs))
}
