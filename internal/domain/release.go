package domain

// Release is a catalog entry an artist may attach to a thread.
type Release struct {
	ID       int64
	ArtistID int64
	Title    string
	CoverURL string
	Status   string
}

// Track belongs to a release.
type Track struct {
	ID           int64
	ReleaseID    int64
	ReleaseTitle string
	Title        string
}
