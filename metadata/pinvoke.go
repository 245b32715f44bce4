package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/signature"
)

// PInvokeAttributes are the MappingFlags of an ImplMap row (II.23.1.8).
type PInvokeAttributes uint16

const (
	PInvokeNoMangle              PInvokeAttributes = 0x0001
	PInvokeCharSetMask           PInvokeAttributes = 0x0006
	PInvokeCharSetAnsi           PInvokeAttributes = 0x0002
	PInvokeCharSetUnicode        PInvokeAttributes = 0x0004
	PInvokeCharSetAuto           PInvokeAttributes = 0x0006
	PInvokeBestFitMask           PInvokeAttributes = 0x0030
	PInvokeBestFitEnabled        PInvokeAttributes = 0x0010
	PInvokeBestFitDisabled       PInvokeAttributes = 0x0020
	PInvokeSupportsLastError     PInvokeAttributes = 0x0040
	PInvokeCallConvMask          PInvokeAttributes = 0x0700
	PInvokeCallConvWinapi        PInvokeAttributes = 0x0100
	PInvokeCallConvCdecl         PInvokeAttributes = 0x0200
	PInvokeCallConvStdcall       PInvokeAttributes = 0x0300
	PInvokeCallConvThiscall      PInvokeAttributes = 0x0400
	PInvokeCallConvFastcall      PInvokeAttributes = 0x0500
	PInvokeThrowOnUnmappableMask PInvokeAttributes = 0x3000
	PInvokeThrowOnUnmappableOn   PInvokeAttributes = 0x1000
	PInvokeThrowOnUnmappableOff  PInvokeAttributes = 0x2000
)

// TriState is a flag that may be left to the platform default.
type TriState uint8

const (
	Unspecified TriState = iota
	True
	False
)

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	}
	return "unspecified"
}

func triState(flags, mask, on, off PInvokeAttributes) TriState {
	switch flags & mask {
	case on:
		return True
	case off:
		return False
	}
	return Unspecified
}

// CharSet is the string marshalling of a P/Invoke.
type CharSet uint8

const (
	CharSetNotSpecified CharSet = iota
	CharSetAnsi
	CharSetUnicode
	CharSetAuto
)

// PInvokeCallingConvention is the native calling convention of a P/Invoke.
type PInvokeCallingConvention uint8

const (
	PInvokeDefault PInvokeCallingConvention = iota
	PInvokeWinapi
	PInvokeCdecl
	PInvokeStdcall
	PInvokeThiscall
	PInvokeFastcall
)

// PlatformInvokeInformation is the ImplMap row of a P/Invoke method.
type PlatformInvokeInformation struct {
	Flags        PInvokeAttributes
	ImportName   string
	ImportModule *ModuleReference
}

func (m *Module) implMapOf(member Token) (*PlatformInvokeInformation, bool) {
	r, ok := m.md.ImplMapOf(member)
	if !ok {
		return nil, false
	}
	row := m.md.ImplMap(r)
	info := &PlatformInvokeInformation{
		Flags:        PInvokeAttributes(row.MappingFlags),
		ImportName:   row.ImportName,
		ImportModule: m.moduleRef(row.ImportScope),
	}
	if info.ImportModule == nil {
		m.host.log.Debug("P/Invoke without import module", zap.String("module", m.name), zap.Stringer("member", member))
	}
	return info, true
}

func (p *PlatformInvokeInformation) NoMangle() bool { return p.Flags&PInvokeNoMangle != 0 }
func (p *PlatformInvokeInformation) SupportsLastError() bool { return p.Flags&PInvokeSupportsLastError != 0 }

func (p *PlatformInvokeInformation) CharSet() CharSet {
	return CharSet((p.Flags & PInvokeCharSetMask) >> 1)
}

// BestFitMapping reads the two-bit best-fit field.
func (p *PlatformInvokeInformation) BestFitMapping() TriState {
	return triState(p.Flags, PInvokeBestFitMask, PInvokeBestFitEnabled, PInvokeBestFitDisabled)
}

// ThrowOnUnmappableChar reads the two-bit throw-on-unmappable field.
func (p *PlatformInvokeInformation) ThrowOnUnmappableChar() TriState {
	return triState(p.Flags, PInvokeThrowOnUnmappableMask, PInvokeThrowOnUnmappableOn, PInvokeThrowOnUnmappableOff)
}

func (p *PlatformInvokeInformation) CallingConvention() PInvokeCallingConvention {
	c := PInvokeCallingConvention((p.Flags & PInvokeCallConvMask) >> 8)
	if c > PInvokeFastcall {
		return PInvokeDefault
	}
	return c
}

// MarshallingInformation is a decoded FieldMarshal blob.
type MarshallingInformation struct {
	signature.MarshalDescriptor
}

func (m *Module) marshalOf(parent Token) (*MarshallingInformation, bool) {
	r, ok := m.md.FieldMarshalOf(parent)
	if !ok {
		return nil, false
	}
	d, err := signature.ParseMarshal(m.md.FieldMarshal(r).NativeType)
	if err != nil {
		m.host.log.Debug("malformed marshalling descriptor", zap.String("module", m.name), zap.Stringer("parent", parent), zap.Error(err))
		if d == nil {
			return nil, false
		}
	}
	return &MarshallingInformation{MarshalDescriptor: *d}, true
}
