package constants

// FundStatus is the canonical status for rows in fund_records.
type FundStatus string

// Stable values (store these exact strings in DB).
const (
	FundStatusCreated    FundStatus = "CREATED"    // record created, upload not started
	FundStatusUploading  FundStatus = "UPLOADING"  // presigned upload credential issued
	FundStatusUploaded   FundStatus = "UPLOADED"   // source documents recorded
	FundStatusProcessing FundStatus = "PROCESSING" // extraction pipeline in flight
	FundStatusExtracted  FundStatus = "EXTRACTED"  // structured payload stored
	FundStatusSucceeded  FundStatus = "SUCCEEDED"  // downstream accepted the result
	FundStatusFailed     FundStatus = "FAILED"     // failure, see error_reason
)

// AllStatuses lists every valid status, for request validation.
func AllStatuses() []FundStatus {
	return []FundStatus{
		FundStatusCreated,
		FundStatusUploading,
		FundStatusUploaded,
		FundStatusProcessing,
		FundStatusExtracted,
		FundStatusSucceeded,
		FundStatusFailed,
	}
}

// IsValidStatus reports whether s is one of the canonical status strings.
func IsValidStatus(s string) bool {
	for _, v := range AllStatuses() {
		if string(v) == s {
			return true
		}
	}
	return false
}
