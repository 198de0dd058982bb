package embedding

import (
	"hash/fnv"
	"strings"
	"unicode"
)

// BERT special token ids.
const (
	clsTokenID = 101
	sepTokenID = 102
	// firstWordID keeps hashed word ids clear of the special and unused range.
	firstWordID = 1000
)

// Tokenizer produces the fixed-length input_ids, attention_mask and token_type_ids a
// BERT-style encoder takes.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// HashTokenizer maps lower-cased words to ids by hashing them into VocabSize buckets.
// It needs no vocabulary file, at the cost of matching no real model vocabulary.
type HashTokenizer struct {
	VocabSize int
}

// Tokenize emits [CLS] word... [SEP] followed by padding. Words past maxTokens-2 are
// dropped.
func (t HashTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens < 2 {
		maxTokens = 2
	}
	vocab := t.VocabSize
	if vocab <= firstWordID {
		vocab = 30522
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	n := 0
	emit := func(id int64) {
		inputIDs[n] = id
		attentionMask[n] = 1
		n++
	}
	emit(clsTokenID)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	for _, w := range words {
		if n == maxTokens-1 {
			break
		}
		emit(int64(firstWordID + HashString(w)%(vocab-firstWordID)))
	}
	emit(sepTokenID)
	return inputIDs, attentionMask, tokenTypeIDs
}

// HashString returns a deterministic non-negative hash (32-bit FNV-1a) for use as a
// token ID or feature index.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32())
}
