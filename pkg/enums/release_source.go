package enums

// ReleaseSource records which path released a hold.
type ReleaseSource string

const (
	ReleaseSourceAdmin ReleaseSource = "admin"
	ReleaseSourceSweep ReleaseSource = "sweep"
)

// IsValid reports whether the value is a known ReleaseSource.
func (r ReleaseSource) IsValid() bool {
	return r == ReleaseSourceAdmin || r == ReleaseSourceSweep
}
