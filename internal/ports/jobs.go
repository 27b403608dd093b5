package ports

// ScanJob is one queued URL of a batch scan.
type ScanJob struct {
	Index int
	URL   string
}
