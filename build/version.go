package build

// BuildVersion is the local build version, set by the makefile via ldflags.
var BuildVersion = "0.1.0"

var CurrentCommit string

func UserVersion() string {
	return BuildVersion + CurrentCommit
}
