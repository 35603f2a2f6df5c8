// Package version reports the sdb release and the source revision a binary
// was built from.
package version

import (
	"fmt"
	"runtime/debug"
)

// Version identifies an sdb build.
type Version struct {
	Major, Minor, Patch int

	// Revision is the VCS commit the binary was built from, empty when the
	// toolchain did not record one.
	Revision string
	// Modified is set when the working tree had uncommitted changes.
	Modified bool
}

// Release is the sdb release this source tree belongs to.
var Release = Version{Major: 0, Minor: 3, Patch: 0}

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

const shortRevision = 12

func (v Version) String() string {
	s := fmt.Sprintf("sdb %d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Revision == "" {
		return s
	}
	rev := v.Revision
	if len(rev) > shortRevision {
		rev = rev[:shortRevision]
	}
	if v.Modified {
		rev += "-dirty"
	}
	return fmt.Sprintf("%s (%s)", s, rev)
}

// Current returns Release with the revision recorded in the running binary.
func Current() Version {
	v := Release
	info, ok := readBuildInfo()
	if !ok {
		return v
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			v.Revision = setting.Value
		case "vcs.modified":
			v.Modified = setting.Value == "true"
		}
	}
	return v
}
