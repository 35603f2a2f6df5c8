package version

import (
	"fmt"
	"io"
	"runtime"
)

// WriteBuildInfo writes the toolchain and the modules linked into the
// running binary, one per line.
func WriteBuildInfo(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH); err != nil {
		return err
	}
	info, ok := readBuildInfo()
	if !ok {
		_, err := fmt.Fprintln(w, "no module information")
		return err
	}
	fmt.Fprintf(w, "  %s\n", info.Main.Path)
	for _, dep := range info.Deps {
		if dep.Replace != nil {
			dep = dep.Replace
		}
		if _, err := fmt.Fprintf(w, "  %s %s\n", dep.Path, dep.Version); err != nil {
			return err
		}
	}
	return nil
}
