package models

import "time"

// DocumentStatus tracks the lifecycle of a controlled document.
type DocumentStatus string

const (
	DocStatusDraft        DocumentStatus = "DRAFT"
	DocStatusInReview     DocumentStatus = "IN_REVIEW"
	DocStatusApproved     DocumentStatus = "APPROVED"
	DocStatusEsignPending DocumentStatus = "ESIGN_PENDING"
	DocStatusSigned       DocumentStatus = "SIGNED"
	DocStatusPublished    DocumentStatus = "PUBLISHED"
	DocStatusArchived     DocumentStatus = "ARCHIVED"
	DocStatusDisposed     DocumentStatus = "DISPOSED"
)

// VersionStatus tracks the per-revision review state of a document version.
type VersionStatus string

const (
	VersionStatusDraft           VersionStatus = "DRAFT"
	VersionStatusPendingApproval VersionStatus = "PENDING_APPROVAL"
	VersionStatusApproved        VersionStatus = "APPROVED"
	VersionStatusSigned          VersionStatus = "SIGNED"
)

// Document is a masterlist entry for a controlled document.
type Document struct {
	ID              string         `db:"id" json:"id"`
	Code            string         `db:"code" json:"code"`
	Title           string         `db:"title" json:"title"`
	Category        string         `db:"category" json:"category"`
	Department      string         `db:"department" json:"department"`
	OwnerID         string         `db:"owner_id" json:"ownerId"`
	CurrentVersion  int            `db:"current_version" json:"currentVersion"`
	CurrentRevision int            `db:"current_revision" json:"currentRevision"`
	Status          DocumentStatus `db:"status" json:"status"`
	SignRequired    bool           `db:"sign_required" json:"signRequired"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updatedAt"`
}

// DocumentVersion is an immutable per-revision file record. Once created the
// only mutation allowed is attaching the signed file reference and the review
// status driven by its approval workflow.
type DocumentVersion struct {
	ID             string        `db:"id" json:"id"`
	DocumentID     string        `db:"document_id" json:"documentId"`
	Version        int           `db:"version" json:"version"`
	Revision       int           `db:"revision" json:"revision"`
	FilePath       string        `db:"file_path" json:"filePath"`
	SignedFilePath *string       `db:"signed_file_path" json:"signedFilePath,omitempty"`
	Status         VersionStatus `db:"status" json:"status"`
	UploadedBy     string        `db:"uploaded_by" json:"uploadedBy"`
	ChangeNote     *string       `db:"change_note" json:"changeNote,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
}

// DocumentFilter constrains masterlist queries.
type DocumentFilter struct {
	Status     []DocumentStatus
	Category   string
	Department string
	OwnerID    string
	Search     string
	Page       int
	PageSize   int
}

// DisposalRecord is the append-only audit entry written when a document is
// retired from circulation.
type DisposalRecord struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"documentId"`
	DisposedBy string    `db:"disposed_by" json:"disposedBy"`
	Reason     string    `db:"reason" json:"reason"`
	Method     string    `db:"method" json:"method"`
	DisposedAt time.Time `db:"disposed_at" json:"disposedAt"`
}
