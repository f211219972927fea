// internal/i18n/keys.go
package i18n

// Translation keys constants
const (
	KeySuccess       = "success"
	KeyInternalError = "error.internal"
	KeyRateLimited   = "error.rate_limited"

	// Authentication
	KeyAuthRequired           = "auth.required"
	KeyAuthInvalidToken       = "auth.invalid_token"
	KeyAuthTokenExpired       = "auth.token_expired"
	KeyAuthInvalidCredentials = "auth.invalid_credentials"
	KeyAuthLoginSuccess       = "auth.login_success"
	KeyAdminAccessDenied      = "admin.access_denied"

	// License requests
	KeyLicenseRequestSubmitted = "license_request.submitted"
	KeyLicenseRequestApproved  = "license_request.approved"
	KeyLicenseRequestRejected  = "license_request.rejected"
	KeyLicenseRequestNotFound  = "license_request.not_found"

	// Payments
	KeyPaymentCreated     = "payment.created"
	KeyPaymentApproved    = "payment.approved"
	KeyPaymentRejected    = "payment.rejected"
	KeyPaymentNotFound    = "payment.not_found"
	KeyPaymentEmailResent = "payment.email_resent"
	KeyPaymentProofStored = "payment.proof_uploaded"

	// Licenses
	KeyLicenseNotFound    = "license.not_found"
	KeyLicenseDeactivated = "license.deactivated"

	// Approvals
	KeyApprovalCreated          = "approval.created"
	KeyApprovalApproved         = "approval.approved"
	KeyApprovalRejected         = "approval.rejected"
	KeyApprovalAlreadyProcessed = "approval.already_processed"
	KeyApprovalExpired          = "approval.expired"
	KeyApprovalInvalidLink      = "approval.invalid_link"
	KeyApprovalUnauthorized     = "approval.unauthorized"
	KeyApprovalReasonRequired   = "approval.reason_required"

	// Validation
	KeyValidationInvalid  = "validation.invalid"
	KeyValidationRequired = "validation.required"

	// Files
	KeyFileRequired = "file.required"
	KeyFileTooLarge = "file.too_large"
	KeyFileType     = "file.invalid_type"
)
