package metadata_test

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

func tinyBody(t *testing.T, instrs ...il.Instruction) []byte {
	t.Helper()
	code, err := il.Encode(instrs)
	require.NoError(t, err)
	require.Less(t, len(code), 64)
	return append([]byte{byte(len(code)<<2 | 0x2)}, code...)
}

type clause struct {
	kind                       uint16
	tryOff, tryLen, hOff, hLen uint16
	token                      uint32
}

func fatBody(t *testing.T, maxStack uint16, locals image.Token, clauses []clause, instrs ...il.Instruction) []byte {
	t.Helper()
	code, err := il.Encode(instrs)
	require.NoError(t, err)
	w := binary.NewWriter()
	flags := uint16(3<<12 | 0x3 | 0x10)
	if len(clauses) > 0 {
		flags |= 0x08
	}
	w.WriteU16(flags)
	w.WriteU16(maxStack)
	w.WriteU32(uint32(len(code)))
	w.WriteU32(uint32(locals))
	w.WriteBytes(code)
	if len(clauses) > 0 {
		w.Align(4)
		w.Byte(0x01)
		w.Byte(byte(4 + 12*len(clauses)))
		w.WriteU16(0)
		for _, c := range clauses {
			w.WriteU16(c.kind)
			w.WriteU16(c.tryOff)
			w.Byte(byte(c.tryLen))
			w.WriteU16(c.hOff)
			w.Byte(byte(c.hLen))
			w.WriteU32(c.token)
		}
	}
	return w.Bytes()
}

type bodyFixture struct {
	*fixture
	hello, greet, guarded, abstract, broken image.Token
	writeLine, exception                    image.Token
}

func newBodyFixture(t *testing.T) *bodyFixture {
	f := &bodyFixture{fixture: newFixture("Demo")}
	console := f.typeRef("System", "Console")
	f.exception = f.typeRef("System", "Exception")
	f.writeLine = f.AddMemberRef(image.MemberRefRow{Parent: console, Name: "WriteLine", Signature: methodSig(tVoid, tString)})
	f.hello = f.AddUserString("hello")
	locals := f.AddStandAloneSig(image.StandAloneSigRow{Signature: signature.EncodeLocals([]signature.Type{tI4, class(f.exception)})})

	f.class("Demo", "Program")
	f.greet = f.AddMethodDef(image.MethodDefRow{
		Name:      "Greet",
		Flags:     0x0016,
		Signature: methodSig(tVoid),
		RVA: f.AddMethodBody(tinyBody(t,
			il.Instruction{Opcode: il.OpLdstr, Imm: il.TokenImm{Token: f.hello}},
			il.Instruction{Opcode: il.OpCall, Imm: il.TokenImm{Token: f.writeLine}},
			il.Instruction{Opcode: il.OpRet},
		)),
	})
	f.guarded = f.AddMethodDef(image.MethodDefRow{
		Name:      "Guarded",
		Flags:     0x0016,
		Signature: methodSig(tVoid),
		RVA: f.AddMethodBody(fatBody(t, 2, locals,
			[]clause{{kind: 0, tryOff: 0, tryLen: 3, hOff: 3, hLen: 3, token: uint32(f.exception)}},
			il.Instruction{Opcode: il.OpNop},
			il.Instruction{Opcode: il.OpLeaveS, Imm: il.BranchImm{Target: 6}},
			il.Instruction{Opcode: il.OpPop},
			il.Instruction{Opcode: il.OpLeaveS, Imm: il.BranchImm{Target: 6}},
			il.Instruction{Opcode: il.OpRet},
		)),
	})
	f.abstract = f.AddMethodDef(image.MethodDefRow{Name: "Todo", Flags: 0x05C6, Signature: instanceSig(tVoid)})
	f.broken = f.AddMethodDef(image.MethodDefRow{
		Name:      "Broken",
		Flags:     0x0016,
		Signature: methodSig(tVoid),
		RVA:       f.AddMethodBody([]byte{3<<2 | 0x2, byte(il.OpNop), 0xA6, byte(il.OpRet)}),
	})
	return f
}

func TestMethodBodyCache(t *testing.T) {
	f := newBodyFixture(t)
	h := newHost(t)
	m := f.loadPE(t, h)
	greet := method(t, m, f.greet)

	first, err := greet.Body()
	require.NoError(t, err)
	second, err := greet.Body()
	require.NoError(t, err)
	assert.Same(t, first, second)

	greet.ReleaseBody()
	third, err := greet.Body()
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, first.Code, third.Code)
	assert.Equal(t, first.MaxStack, third.MaxStack)
	assert.Equal(t, first.LocalSignature, third.LocalSignature)
	assert.Same(t, greet, third.Method())

	h.ReleaseBodies()
	fourth, err := greet.Body()
	require.NoError(t, err)
	assert.NotSame(t, third, fourth)
	assert.Equal(t, first.Code, fourth.Code)
}

func TestBodyCacheIsBounded(t *testing.T) {
	f := newBodyFixture(t)
	h := metadata.NewHost(metadata.Options{Logger: zaptest.NewLogger(t), Intern: intern.New(), BodyCacheSize: 1})
	m := f.loadPE(t, h)
	greet, guarded := method(t, m, f.greet), method(t, m, f.guarded)

	a, err := greet.Body()
	require.NoError(t, err)
	_, err = guarded.Body()
	require.NoError(t, err)
	b, err := greet.Body()
	require.NoError(t, err)
	assert.NotSame(t, a, b, "the second body evicts the first")
	assert.Equal(t, a.Code, b.Code)
}

func TestTinyBody(t *testing.T) {
	f := newBodyFixture(t)
	m := f.loadPE(t, newHost(t))
	body, err := method(t, m, f.greet).Body()
	require.NoError(t, err)

	assert.Equal(t, uint16(8), body.MaxStack)
	assert.False(t, body.InitLocals)
	assert.True(t, body.LocalSignature.IsNil())
	assert.Empty(t, body.Locals())
	assert.Empty(t, body.ExceptionHandlers)

	ops, err := body.Operations()
	require.NoError(t, err)
	require.Len(t, ops, 3)
	assert.Equal(t, "hello", ops[0].Value())
	assert.Equal(t, `IL_0000: ldstr "hello"`, ops[0].String())

	call, ok := ops[1].Value().(*metadata.MethodReference)
	require.True(t, ok)
	assert.Equal(t, "WriteLine", call.Name())
	assert.Equal(t, f.writeLine, call.Token())
	assert.Equal(t, il.OpRet, ops[2].Opcode)
	assert.Nil(t, ops[2].Value())
}

func TestFatBodyWithHandlers(t *testing.T) {
	f := newBodyFixture(t)
	m := f.loadPE(t, newHost(t))
	body, err := method(t, m, f.guarded).Body()
	require.NoError(t, err)

	assert.Equal(t, uint16(2), body.MaxStack)
	assert.True(t, body.InitLocals)
	assert.Len(t, body.Code, 7)

	locals := body.Locals()
	require.Len(t, locals, 2)
	assert.Equal(t, metadata.TypeCodeInt32, locals[0].Type.TypeCode())
	assert.Equal(t, "System.Exception", locals[1].Type.FullName())

	require.Len(t, body.ExceptionHandlers, 1)
	eh := body.ExceptionHandlers[0]
	assert.Equal(t, metadata.HandlerCatch, eh.Kind)
	assert.Equal(t, uint32(0), eh.TryOffset)
	assert.Equal(t, uint32(3), eh.TryLength)
	assert.Equal(t, uint32(3), eh.HandlerOffset)
	assert.Equal(t, uint32(3), eh.HandlerLength)
	require.NotNil(t, eh.CatchType())
	assert.Equal(t, "System.Exception", eh.CatchType().FullName())

	ops, err := body.Operations()
	require.NoError(t, err)
	require.Len(t, ops, 5)
	assert.Equal(t, il.BranchImm{Target: 6}, ops[1].Imm)
	assert.Equal(t, il.BranchImm{Target: 6}, ops[3].Imm)
}

func TestBodyErrors(t *testing.T) {
	f := newBodyFixture(t)
	m := f.loadPE(t, newHost(t))

	abstract := method(t, m, f.abstract)
	assert.False(t, abstract.HasBody())
	_, err := abstract.Body()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseBody, Kind: errors.KindNotFound}))

	body, err := method(t, m, f.broken).Body()
	require.NoError(t, err)
	ops, err := body.Operations()
	require.Error(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, il.OpNop, ops[0].Opcode)
}

func TestConcurrentBodyRequests(t *testing.T) {
	f := newBodyFixture(t)
	m := f.loadPE(t, newHost(t))
	guarded := method(t, m, f.guarded)

	const n = 32
	bodies := make([]*metadata.MethodBody, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := guarded.Body()
			if err == nil {
				bodies[i] = b
			}
		}(i)
	}
	wg.Wait()
	for _, b := range bodies {
		assert.Same(t, bodies[0], b)
	}
}
