package il

import "fmt"

// Opcode is a CIL opcode. Two-byte opcodes carry the 0xFE prefix in the
// high byte.
type Opcode uint16

// Prefix is the first byte of every two-byte opcode.
const Prefix byte = 0xFE

// Opcodes in encoding order.
const (
	OpNop         Opcode = 0x00
	OpBreak       Opcode = 0x01
	OpLdarg0      Opcode = 0x02
	OpLdarg1      Opcode = 0x03
	OpLdarg2      Opcode = 0x04
	OpLdarg3      Opcode = 0x05
	OpLdloc0      Opcode = 0x06
	OpLdloc1      Opcode = 0x07
	OpLdloc2      Opcode = 0x08
	OpLdloc3      Opcode = 0x09
	OpStloc0      Opcode = 0x0A
	OpStloc1      Opcode = 0x0B
	OpStloc2      Opcode = 0x0C
	OpStloc3      Opcode = 0x0D
	OpLdargS      Opcode = 0x0E
	OpLdargaS     Opcode = 0x0F
	OpStargS      Opcode = 0x10
	OpLdlocS      Opcode = 0x11
	OpLdlocaS     Opcode = 0x12
	OpStlocS      Opcode = 0x13
	OpLdnull      Opcode = 0x14
	OpLdcI4M1     Opcode = 0x15
	OpLdcI40      Opcode = 0x16
	OpLdcI41      Opcode = 0x17
	OpLdcI42      Opcode = 0x18
	OpLdcI43      Opcode = 0x19
	OpLdcI44      Opcode = 0x1A
	OpLdcI45      Opcode = 0x1B
	OpLdcI46      Opcode = 0x1C
	OpLdcI47      Opcode = 0x1D
	OpLdcI48      Opcode = 0x1E
	OpLdcI4S      Opcode = 0x1F
	OpLdcI4       Opcode = 0x20
	OpLdcI8       Opcode = 0x21
	OpLdcR4       Opcode = 0x22
	OpLdcR8       Opcode = 0x23
	OpDup         Opcode = 0x25
	OpPop         Opcode = 0x26
	OpJmp         Opcode = 0x27
	OpCall        Opcode = 0x28
	OpCalli       Opcode = 0x29
	OpRet         Opcode = 0x2A
	OpBrS         Opcode = 0x2B
	OpBrfalseS    Opcode = 0x2C
	OpBrtrueS     Opcode = 0x2D
	OpBeqS        Opcode = 0x2E
	OpBgeS        Opcode = 0x2F
	OpBgtS        Opcode = 0x30
	OpBleS        Opcode = 0x31
	OpBltS        Opcode = 0x32
	OpBneUnS      Opcode = 0x33
	OpBgeUnS      Opcode = 0x34
	OpBgtUnS      Opcode = 0x35
	OpBleUnS      Opcode = 0x36
	OpBltUnS      Opcode = 0x37
	OpBr          Opcode = 0x38
	OpBrfalse     Opcode = 0x39
	OpBrtrue      Opcode = 0x3A
	OpBeq         Opcode = 0x3B
	OpBge         Opcode = 0x3C
	OpBgt         Opcode = 0x3D
	OpBle         Opcode = 0x3E
	OpBlt         Opcode = 0x3F
	OpBneUn       Opcode = 0x40
	OpBgeUn       Opcode = 0x41
	OpBgtUn       Opcode = 0x42
	OpBleUn       Opcode = 0x43
	OpBltUn       Opcode = 0x44
	OpSwitch      Opcode = 0x45
	OpLdindI1     Opcode = 0x46
	OpLdindU1     Opcode = 0x47
	OpLdindI2     Opcode = 0x48
	OpLdindU2     Opcode = 0x49
	OpLdindI4     Opcode = 0x4A
	OpLdindU4     Opcode = 0x4B
	OpLdindI8     Opcode = 0x4C
	OpLdindI      Opcode = 0x4D
	OpLdindR4     Opcode = 0x4E
	OpLdindR8     Opcode = 0x4F
	OpLdindRef    Opcode = 0x50
	OpStindRef    Opcode = 0x51
	OpStindI1     Opcode = 0x52
	OpStindI2     Opcode = 0x53
	OpStindI4     Opcode = 0x54
	OpStindI8     Opcode = 0x55
	OpStindR4     Opcode = 0x56
	OpStindR8     Opcode = 0x57
	OpAdd         Opcode = 0x58
	OpSub         Opcode = 0x59
	OpMul         Opcode = 0x5A
	OpDiv         Opcode = 0x5B
	OpDivUn       Opcode = 0x5C
	OpRem         Opcode = 0x5D
	OpRemUn       Opcode = 0x5E
	OpAnd         Opcode = 0x5F
	OpOr          Opcode = 0x60
	OpXor         Opcode = 0x61
	OpShl         Opcode = 0x62
	OpShr         Opcode = 0x63
	OpShrUn       Opcode = 0x64
	OpNeg         Opcode = 0x65
	OpNot         Opcode = 0x66
	OpConvI1      Opcode = 0x67
	OpConvI2      Opcode = 0x68
	OpConvI4      Opcode = 0x69
	OpConvI8      Opcode = 0x6A
	OpConvR4      Opcode = 0x6B
	OpConvR8      Opcode = 0x6C
	OpConvU4      Opcode = 0x6D
	OpConvU8      Opcode = 0x6E
	OpCallvirt    Opcode = 0x6F
	OpCpobj       Opcode = 0x70
	OpLdobj       Opcode = 0x71
	OpLdstr       Opcode = 0x72
	OpNewobj      Opcode = 0x73
	OpCastclass   Opcode = 0x74
	OpIsinst      Opcode = 0x75
	OpConvRUn     Opcode = 0x76
	OpUnbox       Opcode = 0x79
	OpThrow       Opcode = 0x7A
	OpLdfld       Opcode = 0x7B
	OpLdflda      Opcode = 0x7C
	OpStfld       Opcode = 0x7D
	OpLdsfld      Opcode = 0x7E
	OpLdsflda     Opcode = 0x7F
	OpStsfld      Opcode = 0x80
	OpStobj       Opcode = 0x81
	OpConvOvfI1Un Opcode = 0x82
	OpConvOvfI2Un Opcode = 0x83
	OpConvOvfI4Un Opcode = 0x84
	OpConvOvfI8Un Opcode = 0x85
	OpConvOvfU1Un Opcode = 0x86
	OpConvOvfU2Un Opcode = 0x87
	OpConvOvfU4Un Opcode = 0x88
	OpConvOvfU8Un Opcode = 0x89
	OpConvOvfIUn  Opcode = 0x8A
	OpConvOvfUUn  Opcode = 0x8B
	OpBox         Opcode = 0x8C
	OpNewarr      Opcode = 0x8D
	OpLdlen       Opcode = 0x8E
	OpLdelema     Opcode = 0x8F
	OpLdelemI1    Opcode = 0x90
	OpLdelemU1    Opcode = 0x91
	OpLdelemI2    Opcode = 0x92
	OpLdelemU2    Opcode = 0x93
	OpLdelemI4    Opcode = 0x94
	OpLdelemU4    Opcode = 0x95
	OpLdelemI8    Opcode = 0x96
	OpLdelemI     Opcode = 0x97
	OpLdelemR4    Opcode = 0x98
	OpLdelemR8    Opcode = 0x99
	OpLdelemRef   Opcode = 0x9A
	OpStelemI     Opcode = 0x9B
	OpStelemI1    Opcode = 0x9C
	OpStelemI2    Opcode = 0x9D
	OpStelemI4    Opcode = 0x9E
	OpStelemI8    Opcode = 0x9F
	OpStelemR4    Opcode = 0xA0
	OpStelemR8    Opcode = 0xA1
	OpStelemRef   Opcode = 0xA2
	OpLdelem      Opcode = 0xA3
	OpStelem      Opcode = 0xA4
	OpUnboxAny    Opcode = 0xA5
	OpConvOvfI1   Opcode = 0xB3
	OpConvOvfU1   Opcode = 0xB4
	OpConvOvfI2   Opcode = 0xB5
	OpConvOvfU2   Opcode = 0xB6
	OpConvOvfI4   Opcode = 0xB7
	OpConvOvfU4   Opcode = 0xB8
	OpConvOvfI8   Opcode = 0xB9
	OpConvOvfU8   Opcode = 0xBA
	OpRefanyval   Opcode = 0xC2
	OpCkfinite    Opcode = 0xC3
	OpMkrefany    Opcode = 0xC6
	OpLdtoken     Opcode = 0xD0
	OpConvU2      Opcode = 0xD1
	OpConvU1      Opcode = 0xD2
	OpConvI       Opcode = 0xD3
	OpConvOvfI    Opcode = 0xD4
	OpConvOvfU    Opcode = 0xD5
	OpAddOvf      Opcode = 0xD6
	OpAddOvfUn    Opcode = 0xD7
	OpMulOvf      Opcode = 0xD8
	OpMulOvfUn    Opcode = 0xD9
	OpSubOvf      Opcode = 0xDA
	OpSubOvfUn    Opcode = 0xDB
	OpEndfinally  Opcode = 0xDC
	OpLeave       Opcode = 0xDD
	OpLeaveS      Opcode = 0xDE
	OpStindI      Opcode = 0xDF
	OpConvU       Opcode = 0xE0
	OpArglist     Opcode = 0xFE00
	OpCeq         Opcode = 0xFE01
	OpCgt         Opcode = 0xFE02
	OpCgtUn       Opcode = 0xFE03
	OpClt         Opcode = 0xFE04
	OpCltUn       Opcode = 0xFE05
	OpLdftn       Opcode = 0xFE06
	OpLdvirtftn   Opcode = 0xFE07
	OpLdarg       Opcode = 0xFE09
	OpLdarga      Opcode = 0xFE0A
	OpStarg       Opcode = 0xFE0B
	OpLdloc       Opcode = 0xFE0C
	OpLdloca      Opcode = 0xFE0D
	OpStloc       Opcode = 0xFE0E
	OpLocalloc    Opcode = 0xFE0F
	OpEndfilter   Opcode = 0xFE11
	OpUnaligned   Opcode = 0xFE12
	OpVolatile    Opcode = 0xFE13
	OpTail        Opcode = 0xFE14
	OpInitobj     Opcode = 0xFE15
	OpConstrained Opcode = 0xFE16
	OpCpblk       Opcode = 0xFE17
	OpInitblk     Opcode = 0xFE18
	OpNo          Opcode = 0xFE19
	OpRethrow     Opcode = 0xFE1A
	OpSizeof      Opcode = 0xFE1C
	OpRefanytype  Opcode = 0xFE1D
	OpReadonly    Opcode = 0xFE1E
)

// OperandKind is the shape of the operand following an opcode.
type OperandKind uint8

const (
	InlineNone OperandKind = iota
	ShortInlineVar
	InlineVar
	ShortInlineI
	InlineI
	InlineI8
	ShortInlineR
	InlineR
	ShortInlineBrTarget
	InlineBrTarget
	InlineSwitch
	InlineMethod
	InlineField
	InlineType
	InlineTok
	InlineString
	InlineSig
)

// operandSizes holds the fixed operand size of each kind. InlineSwitch is
// variable.
var operandSizes = [...]int{
	InlineNone:          0,
	ShortInlineVar:      1,
	InlineVar:           2,
	ShortInlineI:        1,
	InlineI:             4,
	InlineI8:            8,
	ShortInlineR:        4,
	InlineR:             8,
	ShortInlineBrTarget: 1,
	InlineBrTarget:      4,
	InlineSwitch:        4,
	InlineMethod:        4,
	InlineField:         4,
	InlineType:          4,
	InlineTok:           4,
	InlineString:        4,
	InlineSig:           4,
}

type opcodeInfo struct {
	name    string
	operand OperandKind
	valid   bool
}

var (
	oneByte [256]opcodeInfo
	twoByte [256]opcodeInfo
)

func init() {
	for _, d := range []struct {
		op      Opcode
		name    string
		operand OperandKind
	}{
		{OpNop, "nop", InlineNone},
		{OpBreak, "break", InlineNone},
		{OpLdarg0, "ldarg.0", InlineNone},
		{OpLdarg1, "ldarg.1", InlineNone},
		{OpLdarg2, "ldarg.2", InlineNone},
		{OpLdarg3, "ldarg.3", InlineNone},
		{OpLdloc0, "ldloc.0", InlineNone},
		{OpLdloc1, "ldloc.1", InlineNone},
		{OpLdloc2, "ldloc.2", InlineNone},
		{OpLdloc3, "ldloc.3", InlineNone},
		{OpStloc0, "stloc.0", InlineNone},
		{OpStloc1, "stloc.1", InlineNone},
		{OpStloc2, "stloc.2", InlineNone},
		{OpStloc3, "stloc.3", InlineNone},
		{OpLdargS, "ldarg.s", ShortInlineVar},
		{OpLdargaS, "ldarga.s", ShortInlineVar},
		{OpStargS, "starg.s", ShortInlineVar},
		{OpLdlocS, "ldloc.s", ShortInlineVar},
		{OpLdlocaS, "ldloca.s", ShortInlineVar},
		{OpStlocS, "stloc.s", ShortInlineVar},
		{OpLdnull, "ldnull", InlineNone},
		{OpLdcI4M1, "ldc.i4.m1", InlineNone},
		{OpLdcI40, "ldc.i4.0", InlineNone},
		{OpLdcI41, "ldc.i4.1", InlineNone},
		{OpLdcI42, "ldc.i4.2", InlineNone},
		{OpLdcI43, "ldc.i4.3", InlineNone},
		{OpLdcI44, "ldc.i4.4", InlineNone},
		{OpLdcI45, "ldc.i4.5", InlineNone},
		{OpLdcI46, "ldc.i4.6", InlineNone},
		{OpLdcI47, "ldc.i4.7", InlineNone},
		{OpLdcI48, "ldc.i4.8", InlineNone},
		{OpLdcI4S, "ldc.i4.s", ShortInlineI},
		{OpLdcI4, "ldc.i4", InlineI},
		{OpLdcI8, "ldc.i8", InlineI8},
		{OpLdcR4, "ldc.r4", ShortInlineR},
		{OpLdcR8, "ldc.r8", InlineR},
		{OpDup, "dup", InlineNone},
		{OpPop, "pop", InlineNone},
		{OpJmp, "jmp", InlineMethod},
		{OpCall, "call", InlineMethod},
		{OpCalli, "calli", InlineSig},
		{OpRet, "ret", InlineNone},
		{OpBrS, "br.s", ShortInlineBrTarget},
		{OpBrfalseS, "brfalse.s", ShortInlineBrTarget},
		{OpBrtrueS, "brtrue.s", ShortInlineBrTarget},
		{OpBeqS, "beq.s", ShortInlineBrTarget},
		{OpBgeS, "bge.s", ShortInlineBrTarget},
		{OpBgtS, "bgt.s", ShortInlineBrTarget},
		{OpBleS, "ble.s", ShortInlineBrTarget},
		{OpBltS, "blt.s", ShortInlineBrTarget},
		{OpBneUnS, "bne.un.s", ShortInlineBrTarget},
		{OpBgeUnS, "bge.un.s", ShortInlineBrTarget},
		{OpBgtUnS, "bgt.un.s", ShortInlineBrTarget},
		{OpBleUnS, "ble.un.s", ShortInlineBrTarget},
		{OpBltUnS, "blt.un.s", ShortInlineBrTarget},
		{OpBr, "br", InlineBrTarget},
		{OpBrfalse, "brfalse", InlineBrTarget},
		{OpBrtrue, "brtrue", InlineBrTarget},
		{OpBeq, "beq", InlineBrTarget},
		{OpBge, "bge", InlineBrTarget},
		{OpBgt, "bgt", InlineBrTarget},
		{OpBle, "ble", InlineBrTarget},
		{OpBlt, "blt", InlineBrTarget},
		{OpBneUn, "bne.un", InlineBrTarget},
		{OpBgeUn, "bge.un", InlineBrTarget},
		{OpBgtUn, "bgt.un", InlineBrTarget},
		{OpBleUn, "ble.un", InlineBrTarget},
		{OpBltUn, "blt.un", InlineBrTarget},
		{OpSwitch, "switch", InlineSwitch},
		{OpLdindI1, "ldind.i1", InlineNone},
		{OpLdindU1, "ldind.u1", InlineNone},
		{OpLdindI2, "ldind.i2", InlineNone},
		{OpLdindU2, "ldind.u2", InlineNone},
		{OpLdindI4, "ldind.i4", InlineNone},
		{OpLdindU4, "ldind.u4", InlineNone},
		{OpLdindI8, "ldind.i8", InlineNone},
		{OpLdindI, "ldind.i", InlineNone},
		{OpLdindR4, "ldind.r4", InlineNone},
		{OpLdindR8, "ldind.r8", InlineNone},
		{OpLdindRef, "ldind.ref", InlineNone},
		{OpStindRef, "stind.ref", InlineNone},
		{OpStindI1, "stind.i1", InlineNone},
		{OpStindI2, "stind.i2", InlineNone},
		{OpStindI4, "stind.i4", InlineNone},
		{OpStindI8, "stind.i8", InlineNone},
		{OpStindR4, "stind.r4", InlineNone},
		{OpStindR8, "stind.r8", InlineNone},
		{OpAdd, "add", InlineNone},
		{OpSub, "sub", InlineNone},
		{OpMul, "mul", InlineNone},
		{OpDiv, "div", InlineNone},
		{OpDivUn, "div.un", InlineNone},
		{OpRem, "rem", InlineNone},
		{OpRemUn, "rem.un", InlineNone},
		{OpAnd, "and", InlineNone},
		{OpOr, "or", InlineNone},
		{OpXor, "xor", InlineNone},
		{OpShl, "shl", InlineNone},
		{OpShr, "shr", InlineNone},
		{OpShrUn, "shr.un", InlineNone},
		{OpNeg, "neg", InlineNone},
		{OpNot, "not", InlineNone},
		{OpConvI1, "conv.i1", InlineNone},
		{OpConvI2, "conv.i2", InlineNone},
		{OpConvI4, "conv.i4", InlineNone},
		{OpConvI8, "conv.i8", InlineNone},
		{OpConvR4, "conv.r4", InlineNone},
		{OpConvR8, "conv.r8", InlineNone},
		{OpConvU4, "conv.u4", InlineNone},
		{OpConvU8, "conv.u8", InlineNone},
		{OpCallvirt, "callvirt", InlineMethod},
		{OpCpobj, "cpobj", InlineType},
		{OpLdobj, "ldobj", InlineType},
		{OpLdstr, "ldstr", InlineString},
		{OpNewobj, "newobj", InlineMethod},
		{OpCastclass, "castclass", InlineType},
		{OpIsinst, "isinst", InlineType},
		{OpConvRUn, "conv.r.un", InlineNone},
		{OpUnbox, "unbox", InlineType},
		{OpThrow, "throw", InlineNone},
		{OpLdfld, "ldfld", InlineField},
		{OpLdflda, "ldflda", InlineField},
		{OpStfld, "stfld", InlineField},
		{OpLdsfld, "ldsfld", InlineField},
		{OpLdsflda, "ldsflda", InlineField},
		{OpStsfld, "stsfld", InlineField},
		{OpStobj, "stobj", InlineType},
		{OpConvOvfI1Un, "conv.ovf.i1.un", InlineNone},
		{OpConvOvfI2Un, "conv.ovf.i2.un", InlineNone},
		{OpConvOvfI4Un, "conv.ovf.i4.un", InlineNone},
		{OpConvOvfI8Un, "conv.ovf.i8.un", InlineNone},
		{OpConvOvfU1Un, "conv.ovf.u1.un", InlineNone},
		{OpConvOvfU2Un, "conv.ovf.u2.un", InlineNone},
		{OpConvOvfU4Un, "conv.ovf.u4.un", InlineNone},
		{OpConvOvfU8Un, "conv.ovf.u8.un", InlineNone},
		{OpConvOvfIUn, "conv.ovf.i.un", InlineNone},
		{OpConvOvfUUn, "conv.ovf.u.un", InlineNone},
		{OpBox, "box", InlineType},
		{OpNewarr, "newarr", InlineType},
		{OpLdlen, "ldlen", InlineNone},
		{OpLdelema, "ldelema", InlineType},
		{OpLdelemI1, "ldelem.i1", InlineNone},
		{OpLdelemU1, "ldelem.u1", InlineNone},
		{OpLdelemI2, "ldelem.i2", InlineNone},
		{OpLdelemU2, "ldelem.u2", InlineNone},
		{OpLdelemI4, "ldelem.i4", InlineNone},
		{OpLdelemU4, "ldelem.u4", InlineNone},
		{OpLdelemI8, "ldelem.i8", InlineNone},
		{OpLdelemI, "ldelem.i", InlineNone},
		{OpLdelemR4, "ldelem.r4", InlineNone},
		{OpLdelemR8, "ldelem.r8", InlineNone},
		{OpLdelemRef, "ldelem.ref", InlineNone},
		{OpStelemI, "stelem.i", InlineNone},
		{OpStelemI1, "stelem.i1", InlineNone},
		{OpStelemI2, "stelem.i2", InlineNone},
		{OpStelemI4, "stelem.i4", InlineNone},
		{OpStelemI8, "stelem.i8", InlineNone},
		{OpStelemR4, "stelem.r4", InlineNone},
		{OpStelemR8, "stelem.r8", InlineNone},
		{OpStelemRef, "stelem.ref", InlineNone},
		{OpLdelem, "ldelem", InlineType},
		{OpStelem, "stelem", InlineType},
		{OpUnboxAny, "unbox.any", InlineType},
		{OpConvOvfI1, "conv.ovf.i1", InlineNone},
		{OpConvOvfU1, "conv.ovf.u1", InlineNone},
		{OpConvOvfI2, "conv.ovf.i2", InlineNone},
		{OpConvOvfU2, "conv.ovf.u2", InlineNone},
		{OpConvOvfI4, "conv.ovf.i4", InlineNone},
		{OpConvOvfU4, "conv.ovf.u4", InlineNone},
		{OpConvOvfI8, "conv.ovf.i8", InlineNone},
		{OpConvOvfU8, "conv.ovf.u8", InlineNone},
		{OpRefanyval, "refanyval", InlineType},
		{OpCkfinite, "ckfinite", InlineNone},
		{OpMkrefany, "mkrefany", InlineType},
		{OpLdtoken, "ldtoken", InlineTok},
		{OpConvU2, "conv.u2", InlineNone},
		{OpConvU1, "conv.u1", InlineNone},
		{OpConvI, "conv.i", InlineNone},
		{OpConvOvfI, "conv.ovf.i", InlineNone},
		{OpConvOvfU, "conv.ovf.u", InlineNone},
		{OpAddOvf, "add.ovf", InlineNone},
		{OpAddOvfUn, "add.ovf.un", InlineNone},
		{OpMulOvf, "mul.ovf", InlineNone},
		{OpMulOvfUn, "mul.ovf.un", InlineNone},
		{OpSubOvf, "sub.ovf", InlineNone},
		{OpSubOvfUn, "sub.ovf.un", InlineNone},
		{OpEndfinally, "endfinally", InlineNone},
		{OpLeave, "leave", InlineBrTarget},
		{OpLeaveS, "leave.s", ShortInlineBrTarget},
		{OpStindI, "stind.i", InlineNone},
		{OpConvU, "conv.u", InlineNone},
		{OpArglist, "arglist", InlineNone},
		{OpCeq, "ceq", InlineNone},
		{OpCgt, "cgt", InlineNone},
		{OpCgtUn, "cgt.un", InlineNone},
		{OpClt, "clt", InlineNone},
		{OpCltUn, "clt.un", InlineNone},
		{OpLdftn, "ldftn", InlineMethod},
		{OpLdvirtftn, "ldvirtftn", InlineMethod},
		{OpLdarg, "ldarg", InlineVar},
		{OpLdarga, "ldarga", InlineVar},
		{OpStarg, "starg", InlineVar},
		{OpLdloc, "ldloc", InlineVar},
		{OpLdloca, "ldloca", InlineVar},
		{OpStloc, "stloc", InlineVar},
		{OpLocalloc, "localloc", InlineNone},
		{OpEndfilter, "endfilter", InlineNone},
		{OpUnaligned, "unaligned.", ShortInlineI},
		{OpVolatile, "volatile.", InlineNone},
		{OpTail, "tail.", InlineNone},
		{OpInitobj, "initobj", InlineType},
		{OpConstrained, "constrained.", InlineType},
		{OpCpblk, "cpblk", InlineNone},
		{OpInitblk, "initblk", InlineNone},
		{OpNo, "no.", ShortInlineI},
		{OpRethrow, "rethrow", InlineNone},
		{OpSizeof, "sizeof", InlineType},
		{OpRefanytype, "refanytype", InlineNone},
		{OpReadonly, "readonly.", InlineNone},
	} {
		info := opcodeInfo{name: d.name, operand: d.operand, valid: true}
		if d.op > 0xFF {
			twoByte[d.op&0xFF] = info
		} else {
			oneByte[d.op] = info
		}
	}
}

func (op Opcode) info() opcodeInfo {
	if op > 0xFF {
		if byte(op>>8) != Prefix {
			return opcodeInfo{}
		}
		return twoByte[op&0xFF]
	}
	return oneByte[op]
}

// Valid reports whether op is a defined opcode.
func (op Opcode) Valid() bool { return op.info().valid }

// Operand returns the operand kind of op.
func (op Opcode) Operand() OperandKind { return op.info().operand }

// Size is the encoded size of op without its operand.
func (op Opcode) Size() int {
	if op > 0xFF {
		return 2
	}
	return 1
}

// String returns the assembler mnemonic, such as "ldc.i4.s".
func (op Opcode) String() string {
	if i := op.info(); i.valid {
		return i.name
	}
	return fmt.Sprintf("opcode(0x%X)", uint16(op))
}
