package version

var (
	// Version is the main version at the moment.
	// Embedded by --ldflags on build time
	// Versioning should follow the SemVer guidelines
	// https://semver.org/
	Version = "v0.1.0"

	// Commit is the git commit the binary was built from
	Commit string

	// BuildTime is the UTC time the binary was built at
	BuildTime string
)
