package proc

import (
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/adkevin3307/sdb/pkg/logflags"
)

const textSectionName = ".text"

// ErrNoTextSection is returned when the image has no section named .text.
var ErrNoTextSection = errors.New("could not find .text section")

// BinaryInfo is the static view of the program image, read independently
// of the running process.
type BinaryInfo struct {
	Path  string
	Type  elf.Type
	Entry uint64

	// TextAddr is the link time address of the .text section and Text its
	// contents as found on disk.
	TextAddr uint64
	Text     []byte

	size    int64
	modTime time.Time
}

// LoadBinaryInfo reads the ELF header, the section header table and the
// section name string table of path and extracts the .text section.
func LoadBinaryInfo(path string) (*BinaryInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	f, err := elf.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("unsupported ELF class %v", f.Class)}
	}
	if f.Machine != elf.EM_X86_64 {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("unsupported machine %v", f.Machine)}
	}

	bi := &BinaryInfo{
		Path:    path,
		Type:    f.Type,
		Entry:   f.Entry,
		size:    fi.Size(),
		modTime: fi.ModTime(),
	}

	sec := f.Section(textSectionName)
	if sec == nil {
		return nil, &LoadError{Path: path, Err: ErrNoTextSection}
	}
	bi.TextAddr = sec.Addr
	bi.Text, err = sec.Data()
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	logflags.BinInfoLogger().WithFields(logflags.Fields{
		"path":  path,
		"type":  f.Type,
		"entry": fmt.Sprintf("%#x", f.Entry),
		"text":  fmt.Sprintf("%#x+%#x", sec.Addr, len(bi.Text)),
	}).Debug("image loaded")
	return bi, nil
}

// PositionIndependent returns true if the image is relocated at load time.
func (bi *BinaryInfo) PositionIndependent() bool {
	return bi.Type == elf.ET_DYN
}

// Instructions disassembles the whole .text section as one instruction
// stream, relocated by base. Tables are cached per image and base.
func (bi *BinaryInfo) Instructions(base uint64) *InstructionTable {
	key := imageKey{path: bi.Path, size: bi.size, modTime: bi.modTime.UnixNano(), base: base}
	if t, ok := instructionCache.get(key); ok {
		logflags.BinInfoLogger().Debugf("instruction table for %s reused", bi.Path)
		return t
	}
	t := newInstructionTable(decodeX86(bi.Text, base+bi.TextAddr))
	instructionCache.add(key, t)
	return t
}
