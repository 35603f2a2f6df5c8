package test

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
)

// Fixture is a test binary.
type Fixture struct {
	// Name is the short name of the fixture.
	Name string
	// Path is the absolute path to the test binary.
	Path string
	// Source is the absolute path of the test binary source.
	Source string
}

// Fixtures is a map of Fixture.Name to Fixture.
var Fixtures = make(map[string]Fixture)

var fixturesMu sync.Mutex

// FindFixturesDir walks up from the current directory looking for the
// _fixtures directory.
func FindFixturesDir() string {
	parent := ".."
	fixturesDir := "_fixtures"
	for depth := 0; depth < 10; depth++ {
		if _, err := os.Stat(fixturesDir); err == nil {
			break
		}
		fixturesDir = filepath.Join(parent, fixturesDir)
	}
	return fixturesDir
}

// BuildFixture compiles _fixtures/<name>.go into a static executable in
// the temporary directory. Fixtures are built once per test binary.
func BuildFixture(t testing.TB, name string) Fixture {
	t.Helper()
	fixturesMu.Lock()
	defer fixturesMu.Unlock()
	if f, ok := Fixtures[name]; ok {
		return f
	}

	fixturesDir := FindFixturesDir()

	// Make a (good enough) random temporary file name
	r := make([]byte, 4)
	rand.Read(r)
	path := filepath.Join(fixturesDir, name+".go")
	tmpfile := filepath.Join(os.TempDir(), fmt.Sprintf("%s.%s", name, hex.EncodeToString(r)))

	cmd := exec.Command("go", "build", "-buildmode=exe", "-o", tmpfile, name+".go")
	cmd.Dir = fixturesDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOFLAGS=")

	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Error compiling %s: %v\n%s", path, err, out)
	}

	source, _ := filepath.Abs(path)

	Fixtures[name] = Fixture{Name: name, Path: tmpfile, Source: source}
	return Fixtures[name]
}

// RunTestsWithFixtures runs the tests of a package and removes the
// fixtures built by them before returning.
func RunTestsWithFixtures(m *testing.M) int {
	status := m.Run()

	for _, f := range Fixtures {
		os.Remove(f.Path)
	}
	return status
}

// SkipUnsupported skips tests that need to trace a real process on
// platforms other than linux/amd64.
func SkipUnsupported(t testing.TB) {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skipf("tracing not supported on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}
