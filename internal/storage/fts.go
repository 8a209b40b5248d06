package storage

import (
	"math"
	"regexp"
	"strings"
)

// ftsTermPattern matches the terms FTS5's unicode61 tokenizer would index
var ftsTermPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// sanitizeFTSQuery turns free text into an FTS5 MATCH expression.
// Every term is quoted so operators (AND, OR, NOT, NEAR) and syntax
// characters in user input are matched literally. Terms are OR-ed so a
// page matching any term is a candidate; bm25 ranks pages matching more.
func sanitizeFTSQuery(query string) string {
	terms := ftsTermPattern.FindAllString(query, -1)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// NormalizeBM25 maps an FTS5 bm25 score (negative, lower is better) into
// [0, 1) with better matches closer to 1
func NormalizeBM25(score float64) float64 {
	s := math.Abs(score)
	return s / (1.0 + s)
}
