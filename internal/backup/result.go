package backup

// CreateResult is returned from every backup-producing operation.
type CreateResult struct {
	Success     bool
	BackupID    string
	FileSize    int64
	FileHash    string
	StoragePath string
	UploadedTo  []string
	Error       string
}

// VerifyResult is returned from integrity verification. A hash mismatch is
// a successful check with IntegrityPassed=false, not a check error.
type VerifyResult struct {
	Success         bool
	BackupID        string
	IntegrityPassed bool
	ExpectedHash    string
	ActualHash      string
	SizeVerified    int64
	ServedBy        string
	Error           string
}

// CleanupResult aggregates one reaper pass.
type CleanupResult struct {
	Candidates int
	Deleted    int
	Failed     int
	Errors     []string
}
