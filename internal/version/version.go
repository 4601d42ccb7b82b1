// ABOUTME: Version and product identity constants
// ABOUTME: Reported in server hello messages and command banners

package version

const (
	// Version is the current release version
	Version = "0.1.0"

	// Product is the product name reported to clients
	Product = "SIDStream"

	// Manufacturer identifies the project
	Manufacturer = "SIDStream Project"
)
