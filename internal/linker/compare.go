package linker

import (
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"reclink/internal/linkage"
	"reclink/internal/textutil"
)

// comparator scores two present field values. Results are memoized; record
// pairs repeat the same value pairs heavily during active learning.
type comparator struct {
	memo         *gocache.Cache
	cosineMinLen int
}

func newComparator() *comparator {
	return &comparator{memo: gocache.New(gocache.NoExpiration, 0), cosineMinLen: 1}
}

func (c *comparator) compare(typ linkage.FieldType, a, b string) float64 {
	if a > b {
		a, b = b, a
	}
	key := string(typ) + "\x00" + a + "\x00" + b
	if cached, ok := c.memo.Get(key); ok {
		return cached.(float64)
	}
	score := c.score(typ, a, b)
	c.memo.SetDefault(key, score)
	return score
}

func (c *comparator) score(typ linkage.FieldType, a, b string) float64 {
	switch typ {
	case linkage.FieldExact:
		if a == b {
			return 1
		}
		return 0
	case linkage.FieldShortString:
		if a == b {
			return 1
		}
		return textutil.LevenshteinRatio(a, b)
	case linkage.FieldName:
		return 0.6*textutil.JaroWinkler(a, b) + 0.4*c.cosine(a, b)
	default:
		return 0.7*c.cosine(a, b) + 0.3*textutil.JaroWinkler(a, b)
	}
}

func (c *comparator) cosine(a, b string) float64 {
	if a == b {
		return 1
	}
	return textutil.CosineSimilarity(textutil.NewFingerprint(a, c.cosineMinLen), textutil.NewFingerprint(b, c.cosineMinLen))
}

// featureCount is the vector length for fields: one similarity per field
// plus a both-present indicator per field that declares missing values.
func featureCount(fields []linkage.FieldSpec) int {
	n := len(fields)
	for _, f := range fields {
		if f.HasMissing {
			n++
		}
	}
	return n
}

// features builds the comparison vector for one record pair. Absent values
// contribute zero similarity.
func (c *comparator) features(fields []linkage.FieldSpec, left, right linkage.Record) []float64 {
	out := make([]float64, 0, featureCount(fields))
	var indicators []float64
	for _, f := range fields {
		a, okA := left.Get(f.Field)
		b, okB := right.Get(f.Field)
		both := okA && okB && strings.TrimSpace(a) != "" && strings.TrimSpace(b) != ""
		if both {
			out = append(out, c.compare(f.Type, a, b))
		} else {
			out = append(out, 0)
		}
		if f.HasMissing {
			if both {
				indicators = append(indicators, 1)
			} else {
				indicators = append(indicators, 0)
			}
		}
	}
	return append(out, indicators...)
}
