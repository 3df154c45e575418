package config

const (
	// MaxNodeNameLength is the maximum length for file and folder names.
	// Matches the VARCHAR(255) name column of the structure table.
	MaxNodeNameLength = 255

	// MaxRequestBodyBytes bounds JSON request bodies.
	MaxRequestBodyBytes = 1 << 20
)
