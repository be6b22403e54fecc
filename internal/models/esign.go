package models

import "time"

// EsignStatus tracks an external signature request. SIGNED and
// FAILED_PERMANENT are terminal; FAILED can be retried until the configured
// cap is exhausted.
type EsignStatus string

const (
	EsignStatusPending         EsignStatus = "PENDING"
	EsignStatusSigned          EsignStatus = "SIGNED"
	EsignStatusFailed          EsignStatus = "FAILED"
	EsignStatusFailedPermanent EsignStatus = "FAILED_PERMANENT"
)

// EsignRequest is a per-(version, signer) request against the external
// signing provider.
type EsignRequest struct {
	ID           string      `db:"id" json:"id"`
	DocumentID   string      `db:"document_id" json:"documentId"`
	VersionID    string      `db:"version_id" json:"versionId"`
	SignerID     string      `db:"signer_id" json:"signerId"`
	SignerName   string      `db:"signer_name" json:"signerName"`
	SignerEmail  string      `db:"signer_email" json:"signerEmail"`
	ExternalID   *string     `db:"external_id" json:"externalId,omitempty"`
	Status       EsignStatus `db:"status" json:"status"`
	RetryCount   int         `db:"retry_count" json:"retryCount"`
	FailedReason *string     `db:"failed_reason" json:"failedReason,omitempty"`
	RequestedBy  string      `db:"requested_by" json:"requestedBy"`
	CreatedAt    time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time   `db:"updated_at" json:"updatedAt"`
}
