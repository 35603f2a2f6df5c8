package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
)

// Permission bits of a memory region.
const (
	PermRead  = 0x4
	PermWrite = 0x2
	PermExec  = 0x1
)

// AddrRange is the half open address interval [Begin, End).
type AddrRange struct {
	Begin, End uint64
}

// MemoryRegion is one mapping of the child's address space as described by
// /proc/<pid>/maps.
type MemoryRegion struct {
	AddrRange
	Perm   int
	Offset uint64
	Inode  string
	// Path is the backing object as written in the maps file, Name its base
	// name.
	Path string
	Name string
}

// PermString renders the permission bits as rwx letters.
func (r MemoryRegion) PermString() string {
	b := []byte("---")
	if r.Perm&PermRead != 0 {
		b[0] = 'r'
	}
	if r.Perm&PermWrite != 0 {
		b[1] = 'w'
	}
	if r.Perm&PermExec != 0 {
		b[2] = 'x'
	}
	return string(b)
}

// String returns the vmmap row for r.
func (r MemoryRegion) String() string {
	return fmt.Sprintf("%016x-%016x %s %-9s %s", r.Begin, r.End, r.PermString(), r.Inode, r.Name)
}

// ParseMaps parses a textual memory map description. Lines with less than
// six fields, or whose range or offset do not parse, are skipped. Regions
// are keyed by range, a later line with the same range replaces an earlier
// one, and the result is ordered by Begin.
func ParseMaps(rd io.Reader) ([]MemoryRegion, error) {
	loaded := make(map[AddrRange]MemoryRegion)
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		r, ok := parseMapsLine(scanner.Text())
		if !ok {
			continue
		}
		loaded[r.AddrRange] = r
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	keys := maps.Keys(loaded)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Begin != keys[j].Begin {
			return keys[i].Begin < keys[j].Begin
		}
		return keys[i].End < keys[j].End
	})
	regions := make([]MemoryRegion, 0, len(keys))
	for _, k := range keys {
		regions = append(regions, loaded[k])
	}
	return regions, nil
}

func parseMapsLine(line string) (MemoryRegion, bool) {
	var r MemoryRegion
	fields := strings.Fields(line)
	if len(fields) < 6 {
		return r, false
	}

	v := strings.SplitN(fields[0], "-", 2)
	if len(v) != 2 {
		return r, false
	}
	var err error
	if r.Begin, err = strconv.ParseUint(v[0], 16, 64); err != nil {
		return r, false
	}
	if r.End, err = strconv.ParseUint(v[1], 16, 64); err != nil {
		return r, false
	}
	if r.Begin >= r.End {
		return r, false
	}

	perm := fields[1]
	if len(perm) > 0 && perm[0] == 'r' {
		r.Perm |= PermRead
	}
	if len(perm) > 1 && perm[1] == 'w' {
		r.Perm |= PermWrite
	}
	if len(perm) > 2 && perm[2] == 'x' {
		r.Perm |= PermExec
	}

	if r.Offset, err = strconv.ParseUint(fields[2], 16, 64); err != nil {
		return r, false
	}
	r.Inode = fields[4]
	r.Path = fields[5]
	r.Name = filepath.Base(fields[5])
	return r, true
}

// LoadMaps reads the memory map of process pid.
func LoadMaps(pid int) ([]MemoryRegion, error) {
	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", pid))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoMaps, err)
	}
	defer f.Close()
	return ParseMaps(f)
}

// LoadBase returns the address at which the image at path is mapped in the
// regions, that is the begin of its mapping with file offset zero.
func LoadBase(regions []MemoryRegion, path string) (uint64, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	for _, r := range regions {
		if r.Offset == 0 && (r.Path == abs || r.Path == path) {
			return r.Begin, true
		}
	}
	return 0, false
}
