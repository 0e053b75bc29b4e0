// Package search provides TF-IDF ranked search over the prompt library.
// The corpus is small enough to score on every query, so there is no
// persistent index; tokenization handles English words and CJK bigrams.
package search

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/kimhsiao/promptdeck/internal/models"
)

// Match is one ranked search hit.
type Match struct {
	Task  models.Task `json:"task"`
	Score float64     `json:"score"`
}

// Engine scores tasks against free-text queries.
type Engine struct {
	stopWords map[string]bool
}

// New creates a search Engine.
func New() *Engine {
	return &Engine{stopWords: buildStopWords()}
}

// Search ranks tasks against the query and returns up to limit matches.
// Name matches weigh more than content, tags more than notes.
func (e *Engine) Search(tasks []models.Task, query string, limit int) []Match {
	terms := e.tokenize(query)
	if len(terms) == 0 || len(tasks) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}

	docs := make([]map[string]float64, len(tasks))
	df := make(map[string]int)
	for i := range tasks {
		docs[i] = e.termFrequencies(&tasks[i])
		for term := range docs[i] {
			df[term]++
		}
	}

	total := float64(len(tasks))
	var matches []Match
	for i := range tasks {
		var score float64
		for _, term := range terms {
			tf, ok := docs[i][term]
			if !ok {
				continue
			}
			idf := math.Log(1 + total/float64(df[term]))
			score += tf * idf
		}
		if score > 0 {
			matches = append(matches, Match{Task: tasks[i], Score: score})
		}
	}

	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].Task.UpdatedAt > matches[b].Task.UpdatedAt
	})

	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// Field weights. A query hit on the prompt name should outrank the same
// hit buried in a long system prompt.
const (
	weightName    = 3.0
	weightTags    = 2.0
	weightContent = 1.0
	weightNotes   = 0.5
)

func (e *Engine) termFrequencies(task *models.Task) map[string]float64 {
	tf := make(map[string]float64)

	add := func(text string, weight float64) {
		tokens := e.tokenize(text)
		if len(tokens) == 0 {
			return
		}
		norm := weight / float64(len(tokens))
		for _, token := range tokens {
			tf[token] += norm
		}
	}

	add(task.Name, weightName)
	add(strings.Join(task.Tags, " "), weightTags)
	add(task.Content, weightContent)
	add(task.Notes, weightNotes)

	return tf
}

// tokenize lowercases, strips punctuation, drops stop words, and emits CJK
// characters as unigrams plus bigrams.
func (e *Engine) tokenize(text string) []string {
	var tokens []string
	var word strings.Builder
	var prevCJK rune

	flush := func() {
		if word.Len() == 0 {
			return
		}
		w := strings.ToLower(word.String())
		word.Reset()
		if len(w) > 2 && !e.stopWords[w] {
			tokens = append(tokens, w)
		}
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			flush()
			tokens = append(tokens, string(r))
			if prevCJK != 0 {
				tokens = append(tokens, string(prevCJK)+string(r))
			}
			prevCJK = r
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			word.WriteRune(r)
			prevCJK = 0
		default:
			flush()
			prevCJK = 0
		}
	}
	flush()

	return tokens
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}

func buildStopWords() map[string]bool {
	words := []string{
		"and", "are", "but", "for", "from", "has", "had", "have",
		"its", "not", "the", "that", "this", "they", "was", "will",
		"with", "what", "when", "where", "which", "who", "why", "how",
		"all", "any", "can", "each", "into", "more", "most", "other",
		"same", "some", "such", "than", "then", "too", "very", "you",
		"your", "about", "after", "before", "between", "through",
		"的", "了", "在", "是", "我", "有", "和", "就", "不",
	}
	stop := make(map[string]bool, len(words))
	for _, w := range words {
		stop[w] = true
	}
	return stop
}
