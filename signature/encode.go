package signature

import (
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/internal/binary"
)

// EncodeTypeDefOrRef returns the TypeDefOrRefOrSpecEncoded form of tok.
func EncodeTypeDefOrRef(tok image.Token) uint32 {
	var tag uint32
	switch tok.Table() {
	case image.TableTypeRef:
		tag = 1
	case image.TableTypeSpec:
		tag = 2
	}
	return tok.Row()<<2 | tag
}

func writeType(w *binary.Writer, t Type) {
	switch v := t.(type) {
	case Primitive:
		w.Byte(byte(v.Kind))
	case TypeDefOrRef:
		if v.ValueType {
			w.Byte(byte(ElementValueType))
		} else {
			w.Byte(byte(ElementClass))
		}
		w.WriteCompressedU32(EncodeTypeDefOrRef(v.Token))
	case GenericParam:
		if v.Method {
			w.Byte(byte(ElementMVar))
		} else {
			w.Byte(byte(ElementVar))
		}
		w.WriteCompressedU32(v.Index)
	case Pointer:
		w.Byte(byte(ElementPtr))
		writeType(w, v.Elem)
	case ByRef:
		w.Byte(byte(ElementByRef))
		writeType(w, v.Elem)
	case SZArray:
		w.Byte(byte(ElementSZArray))
		writeType(w, v.Elem)
	case Array:
		w.Byte(byte(ElementArray))
		writeType(w, v.Elem)
		w.WriteCompressedU32(v.Rank)
		w.WriteCompressedU32(uint32(len(v.Sizes)))
		for _, s := range v.Sizes {
			w.WriteCompressedU32(s)
		}
		w.WriteCompressedU32(uint32(len(v.LowerBounds)))
		for _, lb := range v.LowerBounds {
			w.WriteCompressedS32(lb)
		}
	case GenericInst:
		w.Byte(byte(ElementGenericInst))
		writeType(w, v.Generic)
		w.WriteCompressedU32(uint32(len(v.Args)))
		for _, a := range v.Args {
			writeType(w, a)
		}
	case FnPtr:
		w.Byte(byte(ElementFnPtr))
		writeMethod(w, v.Method)
	case Modified:
		if v.Required {
			w.Byte(byte(ElementCModReqd))
		} else {
			w.Byte(byte(ElementCModOpt))
		}
		w.WriteCompressedU32(EncodeTypeDefOrRef(v.Modifier))
		writeType(w, v.Elem)
	case Pinned:
		w.Byte(byte(ElementPinned))
		writeType(w, v.Elem)
	default:
		// Invalid and nil have no encoding; write END so the blob stays parseable.
		w.Byte(byte(ElementEnd))
	}
}

func writeMethod(w *binary.Writer, m *MethodSig) {
	if m == nil {
		m = &MethodSig{Return: Primitive{Kind: ElementVoid}, SentinelIndex: -1}
	}
	cc := m.CallConv
	if m.GenericParamCount > 0 {
		cc |= CallGeneric
	}
	w.Byte(byte(cc))
	if cc.IsGeneric() {
		w.WriteCompressedU32(m.GenericParamCount)
	}
	w.WriteCompressedU32(uint32(len(m.Params)))
	writeType(w, m.Return)
	for i, p := range m.Params {
		if i == m.SentinelIndex {
			w.Byte(byte(ElementSentinel))
		}
		writeType(w, p)
	}
}

// EncodeType encodes a single type, as stored in a TypeSpec blob.
func EncodeType(t Type) []byte {
	w := binary.NewWriter()
	writeType(w, t)
	return w.Bytes()
}

// EncodeMethod encodes a method signature.
func EncodeMethod(m *MethodSig) []byte {
	w := binary.NewWriter()
	writeMethod(w, m)
	return w.Bytes()
}

// EncodeField encodes a field signature.
func EncodeField(t Type) []byte {
	w := binary.NewWriter()
	w.Byte(byte(CallField))
	writeType(w, t)
	return w.Bytes()
}

// EncodeProperty encodes a property signature.
func EncodeProperty(p *PropertySig) []byte {
	w := binary.NewWriter()
	cc := CallProperty
	if p.HasThis {
		cc |= CallHasThis
	}
	w.Byte(byte(cc))
	w.WriteCompressedU32(uint32(len(p.Params)))
	writeType(w, p.Type)
	for _, t := range p.Params {
		writeType(w, t)
	}
	return w.Bytes()
}

// EncodeLocals encodes a LocalVarSig.
func EncodeLocals(locals []Type) []byte {
	w := binary.NewWriter()
	w.Byte(byte(CallLocalSig))
	w.WriteCompressedU32(uint32(len(locals)))
	for _, t := range locals {
		writeType(w, t)
	}
	return w.Bytes()
}

// EncodeMethodSpec encodes a generic method instantiation.
func EncodeMethodSpec(args []Type) []byte {
	w := binary.NewWriter()
	w.Byte(byte(CallGenericInst))
	w.WriteCompressedU32(uint32(len(args)))
	for _, t := range args {
		writeType(w, t)
	}
	return w.Bytes()
}
