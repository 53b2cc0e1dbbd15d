package raw

import (
	"errors"
	"testing"
)

func TestDocumentResolveFollowsChains(t *testing.T) {
	doc := NewDocument()
	doc.Objects[ObjectRef{Num: 1}] = Ref(2, 0)
	doc.Objects[ObjectRef{Num: 2}] = NumberInt(42)

	n, ok := doc.Int(Ref(1, 0))
	if !ok || n != 42 {
		t.Fatalf("expected 42, got %d (%v)", n, ok)
	}
	if _, ok := doc.Resolve(Ref(9, 0)).(NullObj); !ok {
		t.Fatalf("dangling reference should resolve to null")
	}
}

func TestDocumentResolveCycle(t *testing.T) {
	doc := NewDocument()
	doc.Objects[ObjectRef{Num: 1}] = Ref(2, 0)
	doc.Objects[ObjectRef{Num: 2}] = Ref(1, 0)
	if _, ok := doc.Resolve(Ref(1, 0)).(NullObj); !ok {
		t.Fatalf("reference cycle should resolve to null")
	}
}

func TestDocumentAddTracksDirty(t *testing.T) {
	doc := NewDocument()
	doc.Objects[ObjectRef{Num: 4}] = Dict()
	doc.Trailer.Set("Size", NumberInt(5))

	ref := doc.Add(NumberInt(1))
	if ref.Num != 5 {
		t.Fatalf("expected next object number 5, got %d", ref.Num)
	}
	if !doc.IsDirty() {
		t.Fatalf("document should be dirty after Add")
	}
	refs := doc.DirtyRefs()
	if len(refs) != 1 || refs[0] != ref {
		t.Fatalf("unexpected dirty refs %v", refs)
	}
	doc.ClearDirty()
	if doc.IsDirty() {
		t.Fatalf("dirty set should be empty after ClearDirty")
	}
}

func TestStreamMemoInvalidatedBySetData(t *testing.T) {
	s := NewStream(nil, []byte("abc"))
	calls := 0
	decode := func(s *StreamObj) ([]byte, error) {
		calls++
		return append([]byte(nil), s.Data...), nil
	}
	for i := 0; i < 3; i++ {
		if _, err := s.Memo(decode); err != nil {
			t.Fatalf("memo: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one decode, got %d", calls)
	}
	s.SetData([]byte("wxyz"))
	out, _ := s.Memo(decode)
	if string(out) != "wxyz" || calls != 2 {
		t.Fatalf("expected re-decode after SetData, got %q after %d calls", out, calls)
	}
	if n, _ := s.Dict.Get("Length"); n.(NumberObj).I != 4 {
		t.Fatalf("Length not updated: %v", n)
	}
}

func TestStreamMemoCachesErrors(t *testing.T) {
	s := NewStream(nil, []byte("x"))
	boom := errors.New("boom")
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := s.Memo(func(*StreamObj) ([]byte, error) { calls++; return nil, boom })
		if !errors.Is(err, boom) {
			t.Fatalf("expected cached error, got %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("error should be memoized, decode ran %d times", calls)
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := Dict()
	d.Set("A", NewArray(NumberInt(1), Str([]byte("x"))))
	c := d.Clone()
	arr := c.KV["A"].(*ArrayObj)
	arr.Items[0] = NumberInt(2)
	if d.KV["A"].(*ArrayObj).Items[0].(NumberObj).I != 1 {
		t.Fatalf("clone shares array storage")
	}
}

func TestAppendObject(t *testing.T) {
	d := Dict()
	d.Set("Type", NameLiteral("Font"))
	d.Set("A B", NumberFloat(0.5))
	d.Set("Kids", NewArray(Ref(3, 0), NumberInt(-2), Bool(true), NullObj{}))
	d.Set("S", Str([]byte("a(b)\\\n\x01")))
	d.Set("H", HexStr([]byte{0xde, 0xad}))
	got := string(AppendObject(nil, d))
	want := `<</A#20B 0.5/H <DEAD>/Kids [3 0 R -2 true null]/S (a\(b\)\\\n\001)/Type /Font>>`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestAppendFloat(t *testing.T) {
	cases := map[float64]string{
		1:          "1",
		-0.25:      "-0.25",
		1.0 / 3:    "0.33333",
		612.000001: "612",
	}
	for in, want := range cases {
		if got := string(AppendFloat(nil, in)); got != want {
			t.Errorf("%v: got %s want %s", in, got, want)
		}
	}
}
