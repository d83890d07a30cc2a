package kmsg

// versioned is embedded by every request type to supply the
// GetVersion/SetVersion half of the Request interface uniformly.
type versioned struct {
	Version int16
}

func (v *versioned) GetVersion() int16  { return v.Version }
func (v *versioned) SetVersion(n int16) { v.Version = n }

