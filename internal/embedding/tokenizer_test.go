package embedding

import "testing"

func TestHashTokenizer_Tokenize(t *testing.T) {
	tok := HashTokenizer{}
	ids, attn, types := tok.Tokenize("Hello, world!", 8)
	if len(ids) != 8 || len(attn) != 8 || len(types) != 8 {
		t.Fatalf("lengths: %d %d %d", len(ids), len(attn), len(types))
	}
	if ids[0] != clsTokenID || ids[3] != sepTokenID {
		t.Errorf("ids = %v", ids)
	}
	wantMask := []int64{1, 1, 1, 1, 0, 0, 0, 0}
	for i := range wantMask {
		if attn[i] != wantMask[i] {
			t.Errorf("mask = %v, want %v", attn, wantMask)
			break
		}
	}
	again, _, _ := tok.Tokenize("hello world", 8)
	if again[1] != ids[1] || again[2] != ids[2] {
		t.Error("tokenization should ignore case and punctuation")
	}
}

func TestHashTokenizer_Truncates(t *testing.T) {
	ids, attn, _ := HashTokenizer{VocabSize: 5000}.Tokenize("a b c d e f g h", 5)
	if ids[0] != clsTokenID || ids[4] != sepTokenID {
		t.Errorf("ids = %v", ids)
	}
	for i, id := range ids[1:4] {
		if id < firstWordID || id >= 5000 {
			t.Errorf("word %d id %d out of range", i, id)
		}
	}
	for _, m := range attn {
		if m != 1 {
			t.Errorf("mask = %v, want all ones", attn)
			break
		}
	}
}

func TestHashString(t *testing.T) {
	if HashString("abc") != HashString("abc") {
		t.Error("hash should be deterministic")
	}
	if HashString("abc") < 0 || HashString("abc") == HashString("abd") {
		t.Error("unexpected hash values")
	}
}
