package image

import (
	"bytes"
	"debug/pe"
	"os"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/internal/binary"
)

// cliHeaderDirectory is the data directory index of the CLI header.
const cliHeaderDirectory = 14

// CLI header flags (ECMA-335 II.25.3.3.1).
const (
	CLIFlagILOnly           = 0x00000001
	CLIFlag32BitRequired    = 0x00000002
	CLIFlagStrongNameSigned = 0x00000008
	CLIFlagNativeEntryPoint = 0x00000010
)

// DataDirectory is an RVA and size pair.
type DataDirectory struct {
	RVA  uint32
	Size uint32
}

// CLIHeader is the runtime header pointed to by data directory 14.
type CLIHeader struct {
	MetaData            DataDirectory
	Resources           DataDirectory
	StrongNameSignature DataDirectory
	Flags               uint32
	EntryPointToken     uint32
	MajorRuntimeVersion uint16
	MinorRuntimeVersion uint16
}

type section struct {
	va, vsize    uint32
	offset, size uint32
}

// Image is a loaded assembly file. The whole file is held in memory; every
// slice handed out by Image aliases Data.
type Image struct {
	Metadata *Metadata
	Path     string
	Data     []byte
	CLI      CLIHeader
	sections []section
	pe32Plus bool
}

// Open reads the file at path and parses it.
func Open(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Open("read "+path, err)
	}
	img, err := ParsePE(data)
	if err != nil {
		return nil, err
	}
	img.Path = path
	return img, nil
}

// ParsePE parses a PE file carrying CLI metadata.
func ParsePE(data []byte) (*Image, error) {
	f, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Open("parse PE container", err)
	}
	defer f.Close()

	var dir pe.DataDirectory
	img := &Image{Data: data}
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes > cliHeaderDirectory {
			dir = oh.DataDirectory[cliHeaderDirectory]
		}
	case *pe.OptionalHeader64:
		img.pe32Plus = true
		if oh.NumberOfRvaAndSizes > cliHeaderDirectory {
			dir = oh.DataDirectory[cliHeaderDirectory]
		}
	default:
		return nil, errors.New(errors.PhaseOpen, errors.KindInvalidData).
			Entity("optional header").
			Detail("missing PE optional header").
			Build()
	}
	if dir.VirtualAddress == 0 {
		return nil, errors.NotFound(errors.PhaseOpen, "data directory", "CLI header")
	}

	for _, s := range f.Sections {
		img.sections = append(img.sections, section{
			va:     s.VirtualAddress,
			vsize:  s.VirtualSize,
			offset: s.Offset,
			size:   s.Size,
		})
	}

	hdr := img.SliceAtRVA(dir.VirtualAddress)
	if len(hdr) < 72 {
		return nil, errors.Truncated(errors.PhaseOpen, []string{"CLI header"}, 72, len(hdr))
	}
	r := binary.NewReader(hdr)
	_, _ = r.ReadU32() // cb
	img.CLI.MajorRuntimeVersion, _ = r.ReadU16()
	img.CLI.MinorRuntimeVersion, _ = r.ReadU16()
	img.CLI.MetaData = readDirectory(r)
	img.CLI.Flags, _ = r.ReadU32()
	img.CLI.EntryPointToken, _ = r.ReadU32()
	img.CLI.Resources = readDirectory(r)
	img.CLI.StrongNameSignature = readDirectory(r)

	root := img.SliceAtRVA(img.CLI.MetaData.RVA)
	if uint32(len(root)) < img.CLI.MetaData.Size {
		return nil, errors.Truncated(errors.PhaseOpen, []string{"metadata"}, int(img.CLI.MetaData.Size), len(root))
	}
	md, err := ParseMetadata(root[:img.CLI.MetaData.Size])
	if err != nil {
		return nil, err
	}
	img.Metadata = md
	return img, nil
}

// FromMetadata wraps parsed metadata that has no PE container. Such an image
// has no method bodies, field data or embedded resources.
func FromMetadata(md *Metadata) *Image {
	return &Image{Metadata: md}
}

func readDirectory(r *binary.Reader) DataDirectory {
	rva, _ := r.ReadU32()
	size, _ := r.ReadU32()
	return DataDirectory{RVA: rva, Size: size}
}

// Is64Bit reports whether the container uses the PE32+ optional header.
func (img *Image) Is64Bit() bool {
	return img.pe32Plus
}

// SliceAtRVA returns the file bytes from rva to the end of its section, or nil
// when rva is not mapped by any section.
func (img *Image) SliceAtRVA(rva uint32) []byte {
	if rva == 0 {
		return nil
	}
	for _, s := range img.sections {
		span := s.vsize
		if span < s.size {
			span = s.size
		}
		if rva < s.va || rva-s.va >= span {
			continue
		}
		delta := rva - s.va
		if delta >= s.size {
			return nil
		}
		start := uint64(s.offset) + uint64(delta)
		end := uint64(s.offset) + uint64(s.size)
		if end > uint64(len(img.Data)) {
			end = uint64(len(img.Data))
		}
		if start >= end {
			return nil
		}
		return img.Data[start:end]
	}
	return nil
}

// Resource returns the embedded manifest resource at offset within the CLI
// resources directory.
func (img *Image) Resource(offset uint32) ([]byte, error) {
	dir := img.SliceAtRVA(img.CLI.Resources.RVA)
	if dir == nil {
		return nil, errors.NotFound(errors.PhaseOpen, "data directory", "resources")
	}
	if uint64(offset)+4 > uint64(len(dir)) {
		return nil, errors.OutOfBounds(errors.PhaseOpen, []string{"resources"}, int(offset), len(dir))
	}
	r := binary.NewReader(dir[offset:])
	n, _ := r.ReadU32()
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return nil, errors.Truncated(errors.PhaseOpen, []string{"resources"}, int(n), r.Len())
	}
	return b, nil
}
