package model

// Fingerprint is the change-detection state of a source file. Times are
// nanoseconds since the Unix epoch.
type Fingerprint struct {
	Created  int64
	Modified int64
	Size     int64
}

// Mapping is one row of the source to destination listing.
type Mapping struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
	Directory   bool   `yaml:"directory,omitempty"`
	Size        int64  `yaml:"size,omitempty"`
}
