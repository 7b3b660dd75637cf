package retriever

import (
	"sync"
	"unicode/utf8"

	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/yanyiwu/gojieba"
)

// Deduper implements spec.md §4.3 step 5: two passages are duplicates when
// their rerank (or similarity, if unreranked) scores are within
// dedup_epsilon of each other AND their chunk text's normalised similarity
// indicates near-identical content — length ratio ≥ 0.98 AND character
// overlap ≥ 0.98. Overlap is measured over CJK word segments produced by
// gojieba when the text segments cleanly, falling back to byte trigrams
// for text gojieba can't tokenize meaningfully (short/non-CJK strings).
type Deduper struct {
	once   sync.Once
	jieba  *gojieba.Jieba
	initMu sync.Mutex
}

// NewDeduper lazily constructs the gojieba tokenizer on first use since
// loading its dictionary is not free and many Retrieve calls never hit a
// near-duplicate pair worth tokenizing.
func NewDeduper() *Deduper {
	return &Deduper{}
}

// lengthRatioThreshold and overlapThreshold implement spec.md §4.3 step 5's
// "length ratio ≥ 0.98 ∧ character overlap ≥ 98%" near-identical test.
const (
	lengthRatioThreshold = 0.98
	overlapThreshold     = 0.98
)

// Dedup removes later passages whose score is within epsilon of an earlier
// kept passage's score and whose text is near-identical to that kept
// passage's text (length ratio and character overlap both at or above
// threshold). Input is assumed already sorted best-first.
func (d *Deduper) Dedup(passages []types.Passage, epsilon float64) []types.Passage {
	kept := make([]types.Passage, 0, len(passages))
	for _, p := range passages {
		dup := false
		for _, k := range kept {
			if scoreDelta(p, k) <= epsilon &&
				lengthRatio(p.Text, k.Text) >= lengthRatioThreshold &&
				d.overlap(p.Text, k.Text) >= overlapThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, p)
		}
	}
	return kept
}

// lengthRatio is the shorter text's rune length over the longer's, per
// spec.md §4.3 step 5.
func lengthRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	if la == 0 && lb == 0 {
		return 1
	}
	if la == 0 || lb == 0 {
		return 0
	}
	if la > lb {
		la, lb = lb, la
	}
	return float64(la) / float64(lb)
}

func scoreDelta(a, b types.Passage) float64 {
	sa, sb := score(a), score(b)
	delta := sa - sb
	if delta < 0 {
		delta = -delta
	}
	return delta
}

func score(p types.Passage) float64 {
	if p.RerankScore != 0 {
		return p.RerankScore
	}
	return p.Similarity
}

// overlap reports the Jaccard overlap of the two texts' token sets.
func (d *Deduper) overlap(a, b string) float64 {
	ta := d.tokenize(a)
	tb := d.tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	distinctB := make(map[string]bool, len(tb))
	for _, t := range tb {
		distinctB[t] = true
	}

	shared := 0
	for t := range distinctB {
		if set[t] {
			shared++
		}
	}
	union := len(set)
	for t := range distinctB {
		if !set[t] {
			union++
		}
	}
	return float64(shared) / float64(union)
}

func (d *Deduper) tokenize(s string) []string {
	if hasCJK(s) {
		d.ensureJieba()
		return d.jieba.CutForSearch(s, true)
	}
	return byteTrigrams(s)
}

func (d *Deduper) ensureJieba() {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	if d.jieba == nil {
		d.jieba = gojieba.NewJieba()
	}
}

func hasCJK(s string) bool {
	for _, r := range s {
		if (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3040 && r <= 0x30FF) || (r >= 0xAC00 && r <= 0xD7A3) {
			return true
		}
	}
	return false
}

// byteTrigrams is the non-CJK fallback: gojieba segments by dictionary
// lookup and degrades to near-meaningless single-rune tokens on text it
// has no entries for, so plain text instead gets overlapping 3-byte
// windows.
func byteTrigrams(s string) []string {
	if len(s) < 3 {
		return []string{s}
	}
	out := make([]string, 0, len(s)-2)
	for i := 0; i+3 <= len(s); i++ {
		out = append(out, s[i:i+3])
	}
	return out
}
