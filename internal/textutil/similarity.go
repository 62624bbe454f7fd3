package textutil

import "math"

// CosineSimilarity computes the cosine similarity between two fingerprints.
// Returns 0 if either fingerprint is nil or has zero norm.
func CosineSimilarity(a, b *Fingerprint) float64 {
	if a == nil || b == nil || a.norm == 0 || b.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range a.tokens {
		if other, ok := b.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return math.Min(dot/(a.norm*b.norm), 1)
}

// Jaro computes the Jaro similarity of a and b.
func Jaro(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	r1, r2 := []rune(a), []rune(b)
	len1, len2 := len(r1), len(r2)

	window := max(len1, len2)/2 - 1
	if window < 0 {
		window = 0
	}
	matched1 := make([]bool, len1)
	matched2 := make([]bool, len2)
	matches := 0
	for i := 0; i < len1; i++ {
		start := max(0, i-window)
		end := min(len2, i+window+1)
		for j := start; j < end; j++ {
			if matched2[j] || r1[i] != r2[j] {
				continue
			}
			matched1[i] = true
			matched2[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := 0; i < len1; i++ {
		if !matched1[i] {
			continue
		}
		for !matched2[k] {
			k++
		}
		if r1[i] != r2[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	return (m/float64(len1) + m/float64(len2) + (m-float64(transpositions)/2)/m) / 3
}

// JaroWinkler boosts Jaro by the shared prefix, up to four runes, when the
// Jaro score is at least 0.7.
func JaroWinkler(a, b string) float64 {
	jaro := Jaro(a, b)
	if jaro < 0.7 {
		return jaro
	}
	r1, r2 := []rune(a), []rune(b)
	prefix := 0
	for i := 0; i < min(len(r1), len(r2), 4); i++ {
		if r1[i] != r2[i] {
			break
		}
		prefix++
	}
	return math.Min(jaro+float64(prefix)*0.1*(1-jaro), 1)
}

// Levenshtein returns the rune edit distance between a and b.
func Levenshtein(a, b string) int {
	r1, r2 := []rune(a), []rune(b)
	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(r2)]
}

// LevenshteinRatio maps edit distance onto [0,1] relative to the longer
// string.
func LevenshteinRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}
