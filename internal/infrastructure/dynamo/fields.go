package dynamo

// Attribute names referenced from update and condition expressions.
const (
	fieldUpdatedAt         = "updated_at"
	fieldTwoFactorVerified = "two_factor_verified"
	fieldExpiresAt         = "expires_at"
	fieldRequestID         = "request_id"
)

const (
	indexEmail     = "email-index"
	indexUsername  = "username-index"
	indexGoogleSub = "google_sub-index"
	indexUserID    = "user_id-index"
	indexRequestID = "request_id-index"
)
