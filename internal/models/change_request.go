package models

import "time"

// ChangeRequestStatus tracks a post-publication revision proposal. It is
// independent of the main approval workflow's history.
type ChangeRequestStatus string

const (
	ChangeRequestStatusPending   ChangeRequestStatus = "PENDING"
	ChangeRequestStatusApproved  ChangeRequestStatus = "APPROVED"
	ChangeRequestStatusRejected  ChangeRequestStatus = "REJECTED"
	ChangeRequestStatusCompleted ChangeRequestStatus = "COMPLETED"
)

// ChangeRequest proposes an edit to a published document. Approval hands a
// new draft version back to the registry, restarting the lifecycle.
type ChangeRequest struct {
	ID          string              `db:"id" json:"id"`
	DocumentID  string              `db:"document_id" json:"documentId"`
	RequestedBy string              `db:"requested_by" json:"requestedBy"`
	Description string              `db:"description" json:"description"`
	Status      ChangeRequestStatus `db:"status" json:"status"`
	ResolvedBy  *string             `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time          `db:"resolved_at" json:"resolvedAt,omitempty"`
	Note        *string             `db:"note" json:"note,omitempty"`
	CreatedAt   time.Time           `db:"created_at" json:"createdAt"`
}
