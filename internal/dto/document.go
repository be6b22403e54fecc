package dto

import (
	"time"

	"github.com/noah-isme/hse-dms-api/internal/models"
)

// CreateDocumentRequest registers a new masterlist entry with its first
// draft version.
type CreateDocumentRequest struct {
	Code         string  `json:"code" validate:"required"`
	Title        string  `json:"title" validate:"required"`
	Category     string  `json:"category" validate:"required"`
	Department   string  `json:"department" validate:"required"`
	FilePath     string  `json:"filePath" validate:"required"`
	SignRequired bool    `json:"signRequired"`
	ChangeNote   *string `json:"changeNote"`
}

// CreateVersionRequest uploads the next draft revision of a document.
type CreateVersionRequest struct {
	FilePath   string  `json:"filePath" validate:"required"`
	ChangeNote *string `json:"changeNote"`
	// MajorVersion bumps the version number instead of the revision.
	MajorVersion bool `json:"majorVersion"`
}

// DisposeDocumentRequest retires a document with an auditable reason.
type DisposeDocumentRequest struct {
	Reason string `json:"reason" validate:"required"`
	Method string `json:"method" validate:"required"`
}

// DocumentQuery filters masterlist listings.
type DocumentQuery struct {
	Status     []models.DocumentStatus
	Category   string
	Department string
	Search     string
	Page       int
	PageSize   int
}

// DocumentDetail joins a masterlist entry with its current version.
type DocumentDetail struct {
	Document models.Document        `json:"document"`
	Version  models.DocumentVersion `json:"version"`
}

// SignedDownload carries a time-limited download token for a stored file.
type SignedDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
