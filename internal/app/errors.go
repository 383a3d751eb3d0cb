package app

import (
	"fmt"
	"net/http"
)

// DomainError is an error with a fixed HTTP rendering. Handlers pass it
// through mapError unchanged.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errNoSession      = domainError(http.StatusConflict, "NO_ACTIVE_SESSION", "No collaborative session is active", nil)
	errSessionActive  = domainError(http.StatusConflict, "SESSION_ACTIVE", "Project has an active collaborative session", nil)
	errBackupDisabled = domainError(http.StatusServiceUnavailable, "BACKUP_DISABLED", "Snapshot backups are not configured", nil)
)

func invalidArgs(message string) error {
	return domainError(http.StatusBadRequest, "INVALID_ARGS", message, nil)
}
