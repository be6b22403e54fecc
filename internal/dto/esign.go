package dto

// RequestSignatureRequest initiates an e-sign request for the approved
// version of a document.
type RequestSignatureRequest struct {
	SignerID    string `json:"signerId" validate:"required"`
	SignerName  string `json:"signerName" validate:"required"`
	SignerEmail string `json:"signerEmail" validate:"required,email"`
}

// ProviderCallbackRequest is the webhook payload posted by the external
// signing provider.
type ProviderCallbackRequest struct {
	ExternalRequestID string  `json:"externalRequestId" validate:"required"`
	Status            string  `json:"status" validate:"required,oneof=SIGNED FAILED"`
	SignedFileRef     *string `json:"signedFileRef"`
	Reason            *string `json:"reason"`
}
