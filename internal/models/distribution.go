package models

import "time"

// ComplianceState is derived from the read/acknowledge columns, never stored.
type ComplianceState string

const (
	CompliancePending      ComplianceState = "pending"
	ComplianceRead         ComplianceState = "read"
	ComplianceAcknowledged ComplianceState = "acknowledged"
)

// Distribution fans a published document version out to one recipient.
type Distribution struct {
	ID             string     `db:"id" json:"id"`
	DocumentID     string     `db:"document_id" json:"documentId"`
	VersionID      string     `db:"version_id" json:"versionId"`
	RecipientID    string     `db:"recipient_id" json:"recipientId"`
	RecipientName  string     `db:"recipient_name" json:"recipientName"`
	Department     string     `db:"department" json:"department"`
	IsMandatory    bool       `db:"is_mandatory" json:"isMandatory"`
	IsRead         bool       `db:"is_read" json:"isRead"`
	ReadAt         *time.Time `db:"read_at" json:"readAt,omitempty"`
	AcknowledgedAt *time.Time `db:"acknowledged_at" json:"acknowledgedAt,omitempty"`
	AckIPAddress   *string    `db:"ack_ip_address" json:"ackIpAddress,omitempty"`
	AckUserAgent   *string    `db:"ack_user_agent" json:"ackUserAgent,omitempty"`
	Deadline       *time.Time `db:"deadline" json:"deadline,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// State derives the compliance status from the tracking columns.
func (d Distribution) State() ComplianceState {
	switch {
	case d.AcknowledgedAt != nil:
		return ComplianceAcknowledged
	case d.IsRead:
		return ComplianceRead
	default:
		return CompliancePending
	}
}

// ComplianceEntry is one row of the derived compliance report.
type ComplianceEntry struct {
	DistributionID string          `json:"distributionId"`
	RecipientID    string          `json:"recipientId"`
	RecipientName  string          `json:"recipientName"`
	Department     string          `json:"department"`
	IsMandatory    bool            `json:"isMandatory"`
	Status         ComplianceState `json:"status"`
	ReadAt         *time.Time      `json:"readAt,omitempty"`
	AcknowledgedAt *time.Time      `json:"acknowledgedAt,omitempty"`
	Deadline       *time.Time      `json:"deadline,omitempty"`
}

// DistributionBatchResult summarises a publish-time fan-out.
type DistributionBatchResult struct {
	DocumentID string    `json:"documentId"`
	VersionID  string    `json:"versionId"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	CreatedAt  time.Time `json:"createdAt"`
}
