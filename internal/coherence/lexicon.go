package coherence

import "regexp"

var sentenceRe = regexp.MustCompile(`[.!?]+(?:\s+|$)`)

// boilerplate marks sentences that are site chrome rather than
// reporting. Matched lowercase, substring.
var boilerplate = []string{
	"view supported browsers",
	"javascript",
	"cookie",
	"subscribe",
	"newsletter",
	"sign up",
	"sign in",
	"log in",
	"all rights reserved",
	"terms of service",
	"privacy policy",
	"read more",
	"click here",
	"follow us",
	"download the app",
	"advertisement",
	"related articles",
	"share this",
}

var stopwords = toSet(
	"the", "and", "for", "are", "but", "not", "you", "all", "can", "had",
	"her", "was", "one", "our", "out", "day", "get", "has", "him", "his",
	"how", "man", "new", "now", "old", "see", "two", "way", "who", "its",
	"said", "says", "say", "will", "with", "that", "this", "from", "they",
	"have", "been", "were", "when", "what", "where", "which", "while",
	"their", "there", "these", "those", "then", "than", "them", "she",
	"after", "before", "about", "above", "over", "under", "into", "onto",
	"more", "most", "some", "such", "only", "other", "also", "just",
	"could", "would", "should", "may", "might", "must", "being", "because",
	"between", "during", "against", "amid", "among", "per", "via",
	"first", "last", "least", "still", "reuters", "news", "report",
	"reports", "reported", "reporting", "latest", "breaking", "update",
	"updates", "live", "near", "across",
)

var negativeWords = toSet(
	"dead", "death", "deaths", "died", "dies", "killed", "kills", "toll",
	"casualties", "fatalities", "injured", "wounded", "missing", "crisis",
	"disaster", "catastrophe", "devastating", "devastation", "destroyed",
	"destruction", "collapse", "collapsed", "fears", "fear", "warning",
	"warns", "threat", "threatens", "violence", "violent", "attack",
	"attacks", "blame", "blamed", "failure", "failed", "failing", "chaos",
	"outrage", "anger", "grim", "worst", "severe", "emergency", "victims",
	"tragedy", "loss", "losses", "struggle", "struggling",
)

var positiveWords = toSet(
	"rescue", "rescued", "recovery", "recovering", "relief", "survivors",
	"survived", "hope", "hopes", "hopeful", "progress", "success",
	"successful", "aid", "help", "helping", "rebuilt", "rebuilding",
	"breakthrough", "celebrate", "celebrated", "improve", "improved",
	"improving", "agreement", "agreed", "peace", "stable", "stabilized",
	"safe", "saved", "reunited", "resilience", "praised", "donations",
)

func toSet(words ...string) map[string]bool {
	s := make(map[string]bool, len(words))
	for _, w := range words {
		s[w] = true
	}
	return s
}
