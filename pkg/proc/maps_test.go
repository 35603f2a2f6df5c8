package proc

import (
	"strings"
	"testing"
)

const testMaps = `00400000-00401000 r--p 00000000 08:01 1234       /home/user/hello
00401000-00495000 r-xp 00001000 08:01 1234       /home/user/hello
00495000-004bc000 r--p 00095000 08:01 1234       /home/user/hello
004bd000-004c3000 rw-p 000bc000 08:01 1234       /home/user/hello
004c3000-004c8000 rw-p 00000000 00:00 0
01a9e000-01ac1000 rw-p 00000000 00:00 0          [heap]
7ffd6b0c4000-7ffd6b0e5000 rw-p 00000000 00:00 0  [stack]
garbage line
7ffd6b1ec000-7ffd6b1f0000 r--p 00000000 00:00 0  [vvar]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0  [vsyscall]
`

func TestParseMaps(t *testing.T) {
	regions, err := ParseMaps(strings.NewReader(testMaps))
	if err != nil {
		t.Fatal(err)
	}
	// anonymous mapping without path and the garbage line are skipped
	if len(regions) != 8 {
		for _, r := range regions {
			t.Log(r)
		}
		t.Fatalf("expected 8 regions, got %d", len(regions))
	}

	text := regions[1]
	if text.Begin != 0x401000 || text.End != 0x495000 {
		t.Fatalf("wrong range %#x-%#x", text.Begin, text.End)
	}
	if text.Perm != PermRead|PermExec || text.PermString() != "r-x" {
		t.Fatalf("wrong permissions %d %s", text.Perm, text.PermString())
	}
	if text.Offset != 0x1000 || text.Inode != "1234" || text.Name != "hello" || text.Path != "/home/user/hello" {
		t.Fatalf("wrong region %#v", text)
	}

	want := "0000000000401000-0000000000495000 r-x 1234      hello"
	if got := text.String(); got != want {
		t.Fatalf("row mismatch:\n%q\n%q", got, want)
	}

	if regions[4].Name != "[heap]" || regions[7].Perm != PermExec {
		t.Fatalf("unexpected regions %v %v", regions[4], regions[7])
	}
	for i := 1; i < len(regions); i++ {
		if regions[i-1].Begin >= regions[i].Begin {
			t.Fatalf("regions not sorted at %d", i)
		}
	}
}

func TestParseMapsSameRangeReplaces(t *testing.T) {
	in := "1000-2000 r--p 00000000 00:00 1 /a\n" +
		"1000-2000 rw-p 00000000 00:00 2 /b\n"
	regions, err := ParseMaps(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(regions) != 1 || regions[0].Name != "b" || regions[0].Perm != PermRead|PermWrite {
		t.Fatalf("unexpected regions %v", regions)
	}
}

func TestParseMapsLineRejects(t *testing.T) {
	for _, line := range []string{
		"",
		"1000-2000 r--p 00000000 00:00 0",
		"zz-2000 r--p 00000000 00:00 0 /a",
		"2000-1000 r--p 00000000 00:00 0 /a",
		"1000 r--p 00000000 00:00 0 /a",
		"1000-2000 r--p xyz 00:00 0 /a",
	} {
		if r, ok := parseMapsLine(line); ok {
			t.Errorf("line %q accepted as %v", line, r)
		}
	}
}

func TestLoadBase(t *testing.T) {
	regions, err := ParseMaps(strings.NewReader(testMaps))
	if err != nil {
		t.Fatal(err)
	}
	base, ok := LoadBase(regions, "/home/user/hello")
	if !ok || base != 0x400000 {
		t.Fatalf("LoadBase = %#x, %v", base, ok)
	}
	if _, ok := LoadBase(regions, "/nonexistent"); ok {
		t.Fatal("found base of unmapped image")
	}
}
