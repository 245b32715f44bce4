package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseParse,
				Kind:   KindOutOfBounds,
				Path:   []string{"#~", "TypeDef", "row 3"},
				Entity: "TypeDef",
				Detail: "field list past end",
			},
			contains: []string{"[parse]", "out_of_bounds", "#~.TypeDef.row 3", "TypeDef", "field list past end"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseSignature,
				Kind:  KindTruncated,
			},
			contains: []string{"[signature]", "truncated"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseOpen,
				Kind:   KindInvalidData,
				Detail: "read image",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[open]", "invalid_data", "read image", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseParse,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseSignature,
		Kind:  KindTruncated,
		Path:  []string{"MethodDef"},
	}

	if !err.Is(&Error{Phase: PhaseSignature, Kind: KindTruncated}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseParse, Kind: KindTruncated}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseSignature, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	wrapped := Wrap(PhaseResolve, KindNotFound, err, "resolve member")
	if !errors.Is(wrapped, &Error{Phase: PhaseSignature, Kind: KindTruncated}) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseParse, KindOutOfBounds).
		Path("#Blob", "0x40").
		Entity("Blob").
		Value(0x40).
		Cause(cause).
		Detail("offset 0x%x past heap end %d", 0x40, 16).
		Build()

	if err.Phase != PhaseParse {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseParse)
	}
	if err.Kind != KindOutOfBounds {
		t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
	}
	if len(err.Path) != 2 || err.Path[0] != "#Blob" {
		t.Errorf("Path = %v, want [#Blob 0x40]", err.Path)
	}
	if err.Entity != "Blob" {
		t.Errorf("Entity = %v, want Blob", err.Entity)
	}
	if err.Value != 0x40 {
		t.Errorf("Value = %v, want 0x40", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "offset 0x40 past heap end 16" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		kind Kind
	}{
		{"InvalidData", InvalidData(PhaseParse, nil, "bad"), KindInvalidData},
		{"OutOfBounds", OutOfBounds(PhaseParse, nil, 10, 5), KindOutOfBounds},
		{"Truncated", Truncated(PhaseSignature, nil, 4, 1), KindTruncated},
		{"Unsupported", Unsupported(PhaseParse, "#JTD stream"), KindUnsupported},
		{"InvalidUTF8", InvalidUTF8(PhaseParse, nil, []byte{0xff}), KindInvalidUTF8},
		{"Overflow", Overflow(PhaseSignature, nil, uint64(1<<40), "compressed u32"), KindOverflow},
		{"NotFound", NotFound(PhaseResolve, "assembly", "mscorlib"), KindNotFound},
		{"InvalidInput", InvalidInput(PhaseCLI, "no file"), KindInvalidInput},
		{"Cycle", Cycle(PhaseResolve, nil, "exported type chain"), KindCycle},
		{"Misuse", Misuse("ResolvedType", "*fakeRef"), KindMisuse},
		{"NotInitialized", NotInitialized(PhaseBody, "image"), KindNotInitialized},
		{"Open", Open("read", errors.New("x")), KindInvalidData},
		{"ParseFailed", ParseFailed("metadata root", errors.New("x")), KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if tt.err.Error() == "" {
				t.Error("empty message")
			}
		})
	}

	if v := OutOfBounds(PhaseParse, nil, 10, 5).Value; v != 10 {
		t.Errorf("OutOfBounds Value = %v, want 10", v)
	}
	if m := Misuse("ResolvedType", "*fakeRef"); m.Phase != PhaseResolve || m.Entity != "*fakeRef" {
		t.Errorf("Misuse = %+v", m)
	}
}
