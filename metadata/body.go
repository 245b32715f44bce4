package metadata

import (
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/internal/binary"
)

// Method body header formats (ECMA-335 II.25.4).
const (
	headerFormatMask = 0x03
	headerTiny       = 0x02
	headerFat        = 0x03

	fatMoreSects  = 0x08
	fatInitLocals = 0x10

	sectEHTable   = 0x01
	sectFatFormat = 0x40
	sectMoreSects = 0x80

	tinyMaxStack = 8
)

// HandlerKind is the kind of an exception handling clause.
type HandlerKind uint32

const (
	HandlerCatch   HandlerKind = 0x0000
	HandlerFilter  HandlerKind = 0x0001
	HandlerFinally HandlerKind = 0x0002
	HandlerFault   HandlerKind = 0x0004
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFilter:
		return "filter"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	}
	return "HandlerKind(" + strconv.Itoa(int(k)) + ")"
}

// ExceptionHandler is one protected region and its handler.
type ExceptionHandler struct {
	method        *MethodDefinition
	Kind          HandlerKind
	TryOffset     uint32
	TryLength     uint32
	HandlerOffset uint32
	HandlerLength uint32
	// FilterOffset is the start of the filter block of a filter clause.
	FilterOffset uint32
	catchToken   Token
}

// CatchType is the exception type caught by a catch clause, or nil.
func (h ExceptionHandler) CatchType() TypeReference {
	if h.Kind != HandlerCatch {
		return nil
	}
	ctx := genericContext{typeDef: h.method.ContainingTypeDefinition(), method: h.method}
	return h.method.module.typeByToken(h.catchToken, ctx, 0)
}

// MethodBody is a decoded IL method body. Bodies are owned by the host's
// body cache and may be dropped and decoded again at any time.
type MethodBody struct {
	method            *MethodDefinition
	MaxStack          uint16
	InitLocals        bool
	LocalSignature    Token
	Code              []byte
	ExceptionHandlers []ExceptionHandler

	locals once[[]LocalDefinition]
	ops    once[*decodedOps]
}

type decodedOps struct {
	ops []Operation
	err error
}

// Method is the method the body belongs to.
func (b *MethodBody) Method() *MethodDefinition { return b.method }

// Locals resolves the local variable signature.
func (b *MethodBody) Locals() []LocalDefinition {
	return b.locals.get(func() []LocalDefinition {
		if b.LocalSignature.IsNil() || b.LocalSignature.Table() != image.TableStandAloneSig {
			return nil
		}
		s := b.method.module.standAloneSig(b.LocalSignature.Row())
		if s == nil {
			return nil
		}
		return s.Locals(b.method)
	})
}

// Operations decodes the IL stream. On malformed code the operations before
// the bad instruction are returned with the error.
func (b *MethodBody) Operations() ([]Operation, error) {
	d := b.ops.get(func() *decodedOps {
		instrs, err := il.Decode(b.Code)
		out := make([]Operation, len(instrs))
		for i, in := range instrs {
			out[i] = Operation{Instruction: in, body: b}
		}
		if err != nil {
			m := b.method.module
			m.host.log.Debug("malformed IL", zap.String("module", m.name), zap.String("method", b.method.name), zap.Error(err))
		}
		return &decodedOps{ops: out, err: err}
	})
	return d.ops, d.err
}

// Operation is an instruction of a body. Token operands resolve on request.
type Operation struct {
	il.Instruction
	body *MethodBody
}

// Value returns the resolved operand: an Object for member, type and
// signature tokens, a string for ldstr, the immediate otherwise.
func (o Operation) Value() any {
	tok, ok := o.Token()
	if !ok {
		return o.Imm
	}
	m := o.body.method.module
	if tok.Table() == image.TableUserString {
		s, _ := m.ResolveString(tok)
		return s
	}
	return m.resolveIn(tok, genericContext{typeDef: o.body.method.ContainingTypeDefinition(), method: o.body.method})
}

func (o Operation) String() string {
	switch v := o.Value().(type) {
	case string:
		return fmt.Sprintf("IL_%04x: %s %q", o.Offset, o.Opcode, v)
	case TypeReference:
		return fmt.Sprintf("IL_%04x: %s %s", o.Offset, o.Opcode, v.FullName())
	case fmt.Stringer:
		if _, ok := v.(Object); ok {
			return fmt.Sprintf("IL_%04x: %s %s", o.Offset, o.Opcode, v)
		}
	}
	return o.Instruction.String()
}

func decodeBody(d *MethodDefinition) (*MethodBody, error) {
	if !d.HasBody() {
		return nil, errors.NotFound(errors.PhaseBody, "method body", d.name)
	}
	data := d.module.img.SliceAtRVA(d.rva)
	if data == nil {
		return nil, errors.InvalidData(errors.PhaseBody, []string{d.name}, "body RVA outside the image")
	}
	r := binary.NewReader(data)
	first, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b := &MethodBody{method: d, LocalSignature: NoToken}
	switch first & headerFormatMask {
	case headerTiny:
		b.MaxStack = tinyMaxStack
		if b.Code, err = r.ReadBytes(int(first >> 2)); err != nil {
			return nil, errors.Truncated(errors.PhaseBody, []string{d.name, "code"}, int(first>>2), r.Len())
		}
		return b, nil
	case headerFat:
	default:
		return nil, errors.InvalidData(errors.PhaseBody, []string{d.name}, "bad body header format")
	}

	_ = r.Seek(0)
	flagsSize, err := r.ReadU16()
	if err != nil {
		return nil, err
	}
	headerSize := int(flagsSize>>12) * 4
	if headerSize < 12 {
		return nil, errors.InvalidData(errors.PhaseBody, []string{d.name}, "fat header too small")
	}
	if b.MaxStack, err = r.ReadU16(); err != nil {
		return nil, err
	}
	codeSize, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	localTok, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	if localTok != 0 {
		b.LocalSignature = Token(localTok)
	}
	b.InitLocals = flagsSize&fatInitLocals != 0
	if err := r.Seek(headerSize); err != nil {
		return nil, err
	}
	if uint64(codeSize) > uint64(r.Len()) {
		return nil, errors.Truncated(errors.PhaseBody, []string{d.name, "code"}, int(codeSize), r.Len())
	}
	b.Code, _ = r.ReadBytes(int(codeSize))

	if flagsSize&fatMoreSects != 0 {
		if b.ExceptionHandlers, err = decodeSections(r, d); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// decodeSections reads the data sections following the code of a fat body.
func decodeSections(r *binary.Reader, d *MethodDefinition) ([]ExceptionHandler, error) {
	var out []ExceptionHandler
	for more := true; more; {
		if err := r.Align(4); err != nil {
			return nil, err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		more = kind&sectMoreSects != 0
		fat := kind&sectFatFormat != 0

		var size, clauseSize int
		if fat {
			sz, err := r.ReadBytes(3)
			if err != nil {
				return nil, err
			}
			size, clauseSize = int(sz[0])|int(sz[1])<<8|int(sz[2])<<16, 24
		} else {
			sz, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if err := r.Skip(2); err != nil {
				return nil, err
			}
			size, clauseSize = int(sz), 12
		}
		if size < 4 || size-4 > r.Len() {
			return nil, errors.Truncated(errors.PhaseBody, []string{d.name, "section"}, size-4, r.Len())
		}
		if kind&sectEHTable == 0 {
			_ = r.Skip(size - 4)
			continue
		}
		for i := 0; i < (size-4)/clauseSize; i++ {
			h := ExceptionHandler{method: d}
			var token uint32
			if fat {
				flags, _ := r.ReadU32()
				h.Kind = HandlerKind(flags)
				h.TryOffset, _ = r.ReadU32()
				h.TryLength, _ = r.ReadU32()
				h.HandlerOffset, _ = r.ReadU32()
				h.HandlerLength, _ = r.ReadU32()
				token, _ = r.ReadU32()
			} else {
				flags, _ := r.ReadU16()
				h.Kind = HandlerKind(flags)
				tryOff, _ := r.ReadU16()
				tryLen, _ := r.ReadByte()
				hOff, _ := r.ReadU16()
				hLen, _ := r.ReadByte()
				token, _ = r.ReadU32()
				h.TryOffset, h.TryLength = uint32(tryOff), uint32(tryLen)
				h.HandlerOffset, h.HandlerLength = uint32(hOff), uint32(hLen)
			}
			switch h.Kind {
			case HandlerFilter:
				h.FilterOffset = token
			case HandlerCatch:
				h.catchToken = Token(token)
			}
			out = append(out, h)
		}
		_ = r.Skip((size - 4) % clauseSize)
	}
	return out, nil
}

// bodyKey identifies a method across the host.
type bodyKey struct {
	module uint64
	row    uint32
}

func (k bodyKey) String() string {
	return strconv.FormatUint(k.module, 10) + ":" + strconv.FormatUint(uint64(k.row), 10)
}

// bodyCache is a bounded LRU of decoded bodies. Concurrent first requests
// for one body share a single decode.
type bodyCache struct {
	lru   *lru.Cache
	group singleflight.Group
}

func newBodyCache(size int) *bodyCache {
	if size <= 0 {
		size = 1
	}
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &bodyCache{lru: c}
}

func (c *bodyCache) get(d *MethodDefinition) (*MethodBody, error) {
	key := bodyKey{module: d.module.id, row: d.row}
	if v, ok := c.lru.Get(key); ok {
		return v.(*MethodBody), nil
	}
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if v, ok := c.lru.Get(key); ok {
			return v, nil
		}
		b, err := decodeBody(d)
		if err != nil {
			d.module.host.log.Debug("method body not decoded", zap.String("module", d.module.name),
				zap.String("method", d.name), zap.Error(err))
			return nil, err
		}
		c.lru.Add(key, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*MethodBody), nil
}

func (c *bodyCache) release(d *MethodDefinition) {
	c.lru.Remove(bodyKey{module: d.module.id, row: d.row})
}

func (c *bodyCache) purge() {
	c.lru.Purge()
}

func (c *bodyCache) len() int {
	return c.lru.Len()
}

// ReleaseBody drops the cached body. The next Body call decodes it again.
func (d *MethodDefinition) ReleaseBody() {
	d.module.host.bodies.release(d)
}
