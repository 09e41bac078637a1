package wire

// Version identifies the protocol version of the peer a message is exchanged with.
// It is handed to the Codec so objects are serialized in a form the peer understands.
//
// The zero Version is "unset" and is rejected by NewMessage.
type Version struct {
	Ordinal int16
	Name    string
}

// Known protocol versions.
var (
	Version1_12 = Version{Ordinal: 115, Name: "1.12.0"}
	Version1_14 = Version{Ordinal: 150, Name: "1.14.0"}
	Version1_15 = Version{Ordinal: 160, Name: "1.15.0"}

	CurrentVersion = Version1_15
)

// IsZero reports whether the version is unset.
func (v Version) IsZero() bool {
	return v.Ordinal == 0 && v.Name == ""
}

// IsCurrent reports whether v is the version of this build.
func (v Version) IsCurrent() bool {
	return v.Ordinal == CurrentVersion.Ordinal
}

// OlderThan reports whether v predates other.
func (v Version) OlderThan(other Version) bool {
	return v.Ordinal < other.Ordinal
}

func (v Version) String() string {
	if v.IsZero() {
		return "unset"
	}
	return v.Name
}
