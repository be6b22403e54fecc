package dto

import "github.com/noah-isme/hse-dms-api/internal/models"

// CreateChangeRequestRequest proposes an edit to a published document.
type CreateChangeRequestRequest struct {
	Description string `json:"description" validate:"required"`
}

// ResolveChangeRequestRequest records the reviewer verdict. On approval the
// new draft file must be supplied so the registry can open the next version.
type ResolveChangeRequestRequest struct {
	Decision models.ChangeRequestStatus `json:"decision" validate:"required,oneof=APPROVED REJECTED"`
	Note     string                     `json:"note"`
	FilePath string                     `json:"filePath"`
}
