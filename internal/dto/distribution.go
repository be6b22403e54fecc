package dto

import "time"

// RecipientInput names one distribution target.
type RecipientInput struct {
	ID         string `json:"id" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Department string `json:"department"`
}

// DistributeRequest fans the published version out to recipients.
type DistributeRequest struct {
	Recipients  []RecipientInput `json:"recipients" validate:"required,min=1,dive"`
	IsMandatory bool             `json:"isMandatory"`
	Deadline    *time.Time       `json:"deadline"`
}

// AcknowledgeContext carries client metadata captured at acknowledgment time.
type AcknowledgeContext struct {
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}
