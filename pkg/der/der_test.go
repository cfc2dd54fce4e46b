package der

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

// enc builds a DER element with the shortest length form.
func enc(tag byte, parts ...[]byte) []byte {
	content := bytes.Join(parts, nil)
	n := len(content)
	var hdr []byte
	switch {
	case n < 0x80:
		hdr = []byte{tag, byte(n)}
	case n < 0x100:
		hdr = []byte{tag, 0x81, byte(n)}
	default:
		hdr = []byte{tag, 0x82, byte(n >> 8), byte(n)}
	}
	return append(hdr, content...)
}

func seq(parts ...[]byte) []byte { return enc(0x30, parts...) }

func oid(b [OIDSize]byte) []byte { return enc(0x06, b[:]) }

func mustDecodeHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

var testKey = mustDecodeHex("de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")

func TestFindObject_Minimal(t *testing.T) {
	stream := seq(oid(OIDX25519), enc(0x04, []byte{0xAA, 0xBB, 0xCC}))

	out := make([]byte, 8)
	res, err := FindObject(stream, OIDX25519, out, CropPrefix)
	if err != nil {
		t.Fatalf("FindObject() error = %v", err)
	}
	if res.N != 3 || res.Cropped || res.Size != 3 {
		t.Errorf("FindObject() = %+v, want N=3 Size=3 not cropped", res)
	}
	if !bytes.Equal(out[:res.N], []byte{0xAA, 0xBB, 0xCC}) {
		t.Errorf("FindObject() value = %x", out[:res.N])
	}
}

func TestFindObject_SubjectPublicKeyInfo(t *testing.T) {
	// SubjectPublicKeyInfo nested inside a TBS-like structure.
	spki := seq(seq(oid(OIDX25519)), enc(0x03, []byte{0x00}, testKey))
	stream := seq(
		seq(
			enc(0xA0, enc(0x02, []byte{0x02})),
			enc(0x02, []byte{0x01}),
			seq(oid(OIDEd25519)),
			spki,
		),
		seq(oid(OIDEd25519)),
		enc(0x03, []byte{0x00}, make([]byte, 64)),
	)

	tests := []struct {
		name   string
		size   int
		policy CropPolicy
		want   []byte
		crop   bool
	}{
		{"prefix 32", 32, CropPrefix, testKey, true},
		{"suffix 32", 32, CropSuffix, append([]byte{0x00}, testKey[:31]...), true},
		{"exact 33", 33, CropPrefix, append([]byte{0x00}, testKey...), false},
		{"larger 40", 40, CropSuffix, append([]byte{0x00}, testKey...), false},
		{"prefix 1", 1, CropPrefix, testKey[31:], true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := make([]byte, tc.size)
			res, err := FindObject(stream, OIDX25519, out, tc.policy)
			if err != nil {
				t.Fatalf("FindObject() error = %v", err)
			}
			if res.Cropped != tc.crop {
				t.Errorf("Cropped = %v, want %v", res.Cropped, tc.crop)
			}
			if res.Size != 33 {
				t.Errorf("Size = %d, want 33", res.Size)
			}
			if !bytes.Equal(out[:res.N], tc.want) {
				t.Errorf("value = %x, want %x", out[:res.N], tc.want)
			}
		})
	}
}

func TestFindObject_FirstOccurrence(t *testing.T) {
	stream := seq(
		seq(oid(OIDX25519), enc(0x04, []byte{0x01})),
		seq(oid(OIDX25519), enc(0x04, []byte{0x02})),
	)
	out := make([]byte, 4)
	res, err := FindObject(stream, OIDX25519, out, CropPrefix)
	if err != nil {
		t.Fatalf("FindObject() error = %v", err)
	}
	if res.N != 1 || out[0] != 0x01 {
		t.Errorf("FindObject() = %x, want first occurrence 01", out[:res.N])
	}
}

func TestFindObject_SkipsConstructedAfterOID(t *testing.T) {
	// The next primitive after the OID is inside a following SEQUENCE.
	stream := seq(oid(OIDX25519), seq(seq(enc(0x02, []byte{0x7F}))))
	out := make([]byte, 4)
	res, err := FindObject(stream, OIDX25519, out, CropPrefix)
	if err != nil {
		t.Fatalf("FindObject() error = %v", err)
	}
	if res.N != 1 || out[0] != 0x7F {
		t.Errorf("FindObject() = %x, want 7f", out[:res.N])
	}
}

func TestFindObject_NotFound(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
	}{
		{"absent", seq(oid(OIDEd25519), enc(0x04, []byte{0x01}))},
		{"longer oid", seq(enc(0x06, []byte{0x2B, 0x65, 0x6E, 0x01}), enc(0x04, []byte{0x01}))},
		{"oid is last", seq(enc(0x02, []byte{0x01}), oid(OIDX25519))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FindObject(tc.stream, OIDX25519, make([]byte, 32), CropPrefix)
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("FindObject() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestFindObject_Errors(t *testing.T) {
	tests := []struct {
		name   string
		stream []byte
		want   error
	}{
		{"empty", nil, ErrInvalidEncoding},
		{"truncated header", []byte{0x30}, ErrInvalidEncoding},
		{"truncated content", []byte{0x30, 0x05, 0x06, 0x03}, ErrInvalidEncoding},
		{"child overruns parent", []byte{0x30, 0x04, 0x06, 0x03, 0x2B, 0x65, 0x6E}, ErrInvalidEncoding},
		{"primitive top level", []byte{0x04, 0x01, 0x00}, ErrInvalidEncoding},
		{"truncated long length", []byte{0x30, 0x82, 0x01}, ErrInvalidEncoding},
		{"three length bytes", []byte{0x30, 0x83, 0x00, 0x00, 0x01, 0x00}, ErrUnsupported},
		{"indefinite length", []byte{0x30, 0x80, 0x00, 0x00}, ErrUnsupported},
		{"high tag number", []byte{0x30, 0x03, 0x1F, 0x81, 0x00}, ErrUnsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FindObject(tc.stream, OIDX25519, make([]byte, 32), CropPrefix)
			if !errors.Is(err, tc.want) {
				t.Errorf("FindObject() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestFindObject_EmptyBuffer(t *testing.T) {
	stream := seq(oid(OIDX25519), enc(0x04, []byte{0x01}))
	if _, err := FindObject(stream, OIDX25519, nil, CropPrefix); !errors.Is(err, ErrEmptyBuffer) {
		t.Errorf("FindObject(nil out) error = %v, want ErrEmptyBuffer", err)
	}
}

func TestFindObject_LongForm(t *testing.T) {
	large := bytes.Repeat([]byte{0x5A}, 300)
	small := bytes.Repeat([]byte{0xA5}, 200)
	stream := seq(enc(0x04, small), oid(OIDX25519), enc(0x04, large))

	out := make([]byte, 300)
	res, err := FindObject(stream, OIDX25519, out, CropPrefix)
	if err != nil {
		t.Fatalf("FindObject() error = %v", err)
	}
	if res.N != 300 || !bytes.Equal(out, large) {
		t.Errorf("FindObject() N = %d", res.N)
	}
}

func TestFindObject_DepthCap(t *testing.T) {
	nest := func(depth int) []byte {
		inner := seq(oid(OIDX25519), enc(0x04, []byte{0x01}))
		for i := 0; i < depth; i++ {
			inner = seq(inner)
		}
		return inner
	}

	out := make([]byte, 1)
	if _, err := FindObject(nest(MaxDepth-1), OIDX25519, out, CropPrefix); err != nil {
		t.Errorf("FindObject(depth %d) error = %v", MaxDepth-1, err)
	}
	if _, err := FindObject(nest(MaxDepth+4), OIDX25519, out, CropPrefix); !errors.Is(err, ErrTooDeep) {
		t.Errorf("FindObject(depth %d) error = %v, want ErrTooDeep", MaxDepth+4, err)
	}
}

func TestWalk(t *testing.T) {
	stream := seq(seq(oid(OIDX25519)), enc(0x04, []byte{0x01}), enc(0xA1))

	type visit struct {
		depth int
		tag   Tag
	}
	var got []visit
	err := Walk(stream, func(depth int, el Element) error {
		got = append(got, visit{depth, el.Tag})
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []visit{
		{0, TagSequence},
		{1, TagSequence},
		{2, TagOID},
		{1, TagOctetString},
		{1, Tag(0xA1)},
	}
	if len(got) != len(want) {
		t.Fatalf("Walk() visited %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("visit %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestWalk_StopsOnError(t *testing.T) {
	stop := errors.New("stop")
	count := 0
	err := Walk(seq(enc(0x02, []byte{1}), enc(0x02, []byte{2})), func(int, Element) error {
		count++
		if count == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || count != 2 {
		t.Errorf("Walk() = %v after %d visits, want stop after 2", err, count)
	}
}

func TestTag_String(t *testing.T) {
	tests := []struct {
		tag  Tag
		want string
	}{
		{TagSequence, "SEQUENCE"},
		{TagOID, "OBJECT IDENTIFIER"},
		{Tag(0xA3), "[3]"},
		{Tag(0x45), "tag(0x45)"},
	}
	for _, tc := range tests {
		if got := tc.tag.String(); got != tc.want {
			t.Errorf("Tag(0x%02x).String() = %q, want %q", byte(tc.tag), got, tc.want)
		}
	}
	if !Tag(0xA0).IsConstructed() || TagOID.IsConstructed() {
		t.Error("IsConstructed() mismatch")
	}
	if Tag(0xA0).Class() != ClassContextSpecific {
		t.Errorf("Class() = %v, want ContextSpecific", Tag(0xA0).Class())
	}
}

func TestParseOutline_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cert []byte
		want error
	}{
		{"not a sequence", enc(0x31, seq(), seq(), enc(0x03, []byte{0})), ErrInvalidEncoding},
		{"missing signature", seq(seq(), seq(oid(OIDEd25519))), ErrInvalidEncoding},
		{"trailing element", seq(seq(), seq(oid(OIDEd25519)), enc(0x03, []byte{0}), enc(0x05)), ErrInvalidEncoding},
		{"no algorithm oid", seq(seq(), seq(enc(0x05)), enc(0x03, []byte{0})), ErrInvalidEncoding},
		{"unused bits", seq(seq(), seq(oid(OIDEd25519)), enc(0x03, []byte{0x03, 0xF8})), ErrUnsupported},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseOutline(tc.cert); !errors.Is(err, tc.want) {
				t.Errorf("ParseOutline() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestChildren(t *testing.T) {
	el, err := Parse(seq(enc(0x02, []byte{1}), seq(), enc(0x05)))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	kids, err := Children(el)
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	want := []Tag{TagInteger, TagSequence, TagNull}
	if len(kids) != len(want) {
		t.Fatalf("Children() = %d elements, want %d", len(kids), len(want))
	}
	for i, k := range kids {
		if k.Tag != want[i] {
			t.Errorf("child %d tag = %s, want %s", i, k.Tag, want[i])
		}
	}

	prim, _ := Parse(enc(0x02, []byte{1}))
	if _, err := Children(prim); !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Children(primitive) error = %v, want ErrInvalidEncoding", err)
	}
}
