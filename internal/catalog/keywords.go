package catalog

import (
	"strings"
	"unicode/utf8"
)

var stopwords = map[string]struct{}{
	"DE": {}, "DO": {}, "DA": {}, "DOS": {}, "DAS": {}, "EM": {}, "NO": {}, "NA": {}, "NOS": {}, "NAS": {},
	"O": {}, "A": {}, "OS": {}, "AS": {}, "UM": {}, "UMA": {}, "E": {}, "OU": {}, "PARA": {}, "COM": {},
	"SEM": {}, "POR": {}, "TIPO": {}, "PACOTE": {}, "UNIDADE": {}, "KG": {}, "G": {}, "ML": {}, "L": {},
}

// ExtractKeywords returns the upper-cased words of description that carry meaning,
// dropping stopwords and words shorter than three characters.
func ExtractKeywords(description string) []string {
	words := strings.Fields(strings.ToUpper(description))
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) < 3 {
			continue
		}
		if _, stop := stopwords[w]; stop {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}
