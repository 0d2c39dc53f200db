package models

// Course is one row of the static catalog. Loaded once per process from CSV
// and read-only afterwards.
type Course struct {
	ID              string
	Title           string
	URL             string
	Subject         string
	Level           string
	Price           float64
	IsPaid          bool
	NumSubscribers  int
	NumReviews      int
	ContentDuration float64 // hours
}
