package linker

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"

	"reclink/internal/linkage"
)

const pairKeyLength = sha256.Size * 2

// pairKey hashes the values fields see on both records of a pair. Pairs with
// identical normalized content share a key whatever their row ids.
func pairKey(fields []linkage.FieldSpec, left, right linkage.Record) string {
	h := sha256.New()
	for _, rec := range []linkage.Record{left, right} {
		for _, f := range fields {
			_, _ = h.Write([]byte(f.Field))
			_, _ = h.Write([]byte{0})
			if v, ok := rec.Get(f.Field); ok {
				_, _ = h.Write([]byte(strconv.Itoa(len(v))))
				_, _ = h.Write([]byte{':'})
				_, _ = h.Write([]byte(v))
			} else {
				_, _ = h.Write([]byte{'-'})
			}
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte{0xff})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// distinctKeys returns the sorted, deduplicated keys of every example judged
// distinct.
func distinctKeys(fields []linkage.FieldSpec, examples []linkage.LabeledExample) []string {
	var keys []string
	for _, ex := range examples {
		if ex.Judgment == linkage.JudgmentDistinct {
			keys = append(keys, pairKey(fields, ex.LeftRecord, ex.RightRecord))
		}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}

func validPairKey(key string) bool {
	if len(key) != pairKeyLength {
		return false
	}
	_, err := hex.DecodeString(key)
	return err == nil
}
