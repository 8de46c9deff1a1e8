package matcher

import (
	"regexp"
	"strings"
)

// Tokens are runs of two or more letters, digits or underscores.
var tokenRe = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenizer turns text into terms: lowercase unigrams with stop words removed,
// plus n-grams up to NGramMax built over the filtered unigrams.
type Tokenizer struct {
	NGramMax       int
	ExpandSynonyms bool
}

// Terms returns the terms of text in order, with repetition.
func (t Tokenizer) Terms(text string) []string {
	text = strings.ToLower(text)
	if t.ExpandSynonyms {
		text = expandSynonyms(text)
	}
	var words []string
	for _, w := range tokenRe.FindAllString(text, -1) {
		if !stopWords[w] {
			words = append(words, w)
		}
	}
	terms := append([]string(nil), words...)
	for n := 2; n <= t.NGramMax; n++ {
		for i := 0; i+n <= len(words); i++ {
			terms = append(terms, strings.Join(words[i:i+n], " "))
		}
	}
	return terms
}

// synonyms maps colloquial verbs and nouns onto the vocabulary the default
// catalog uses. "go to" is handled in expandSynonyms.
var synonyms = []struct{ from, to string }{
	{"e-mail", "email"},
	{"mail", "email"},
	{"message", "email"},
	{"letter", "email"},
	{"browse", "open website"},
	{"surf", "open website"},
	{"navigate", "open website"},
	{"visit", "open website"},
	{"launch", "open"},
	{"start", "open"},
	{"run", "open"},
	{"execute", "open"},
	{"write", "type"},
	{"enter", "type"},
	{"input", "type"},
	{"fill", "type"},
	{"press", "click"},
	{"hit", "click"},
	{"tap", "click"},
	{"select", "click"},
}

// expandSynonyms rewrites whole words only, so "email" is not turned into
// "eemail" by the "mail" rule.
func expandSynonyms(text string) string {
	words := strings.Fields(text)
	var out []string
	for i := 0; i < len(words); i++ {
		if i+1 < len(words) && words[i] == "go" && words[i+1] == "to" {
			out = append(out, "open", "website")
			i++
			continue
		}
		replaced := false
		for _, s := range synonyms {
			if words[i] == s.from {
				out = append(out, s.to)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, words[i])
		}
	}
	return strings.Join(out, " ")
}

var stopWords = func() map[string]bool {
	list := `a about above across after afterwards again against all almost alone along already also although
always am among amongst amoungst amount an and another any anyhow anyone anything anyway anywhere are around as at
back be became because become becomes becoming been before beforehand behind being below beside besides between
beyond bill both bottom but by call can cannot cant co con could couldnt cry de describe detail do done down due
during each eg eight either eleven else elsewhere empty enough etc even ever every everyone everything everywhere
except few fifteen fifty fill first five for former formerly forty found four from front full further get give
had has hasnt have he hence her here hereafter hereby herein hereupon hers herself him himself his how however
hundred i ie if in inc indeed interest into is it its itself keep last latter latterly least less ltd made many
may me meanwhile might mill mine more moreover most mostly move much must my myself name namely neither never
nevertheless next nine no nobody none noone nor not nothing now nowhere of off often on once one only onto or
other others otherwise our ours ourselves out over own part per perhaps please put rather re same see seem seemed
seeming seems serious several she should show side since sincere six sixty so some somehow someone something
sometime sometimes somewhere still such system take ten than that the their them themselves then thence there
thereafter thereby therefore therein thereupon these they thick thin third this those though three through
throughout thru thus to together too top toward towards twelve twenty two un under until up upon us very via
was we well were what whatever when whence whenever where whereafter whereas whereby wherein whereupon wherever
whether which while whither who whoever whole whom whose why will with within without would yet you your yours
yourself yourselves`
	m := make(map[string]bool)
	for _, w := range strings.Fields(list) {
		m[w] = true
	}
	return m
}()
