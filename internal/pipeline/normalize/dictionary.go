// internal/pipeline/normalize/dictionary.go
package normalize

import (
	"regexp"
	"sort"
	"strings"
)

// Dictionary maps known role and skill aliases to their canonical terms.
// ASCII aliases are matched case-insensitively on word boundaries so a
// token like "task8s" never gets corrupted; CJK aliases have no word
// boundaries and are replaced as literal substrings. The dictionary is
// immutable after construction.
type Dictionary struct {
	asciiRules []asciiRule
	cjkRules   []cjkRule
}

type asciiRule struct {
	pattern   *regexp.Regexp
	canonical string
}

type cjkRule struct {
	alias     string
	canonical string
}

// NewDictionary compiles an alias-to-canonical map. Longer aliases are
// applied first so "html5" wins over "html".
func NewDictionary(aliases map[string]string) *Dictionary {
	keys := make([]string, 0, len(aliases))
	for alias := range aliases {
		keys = append(keys, alias)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	d := &Dictionary{}
	for _, alias := range keys {
		canonical := aliases[alias]
		if isASCII(alias) {
			pattern := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(alias) + `\b`)
			d.asciiRules = append(d.asciiRules, asciiRule{pattern: pattern, canonical: canonical})
		} else {
			d.cjkRules = append(d.cjkRules, cjkRule{alias: alias, canonical: canonical})
		}
	}
	return d
}

// DefaultAliases is the built-in recruiting vocabulary. Deployments extend
// it through configuration.
func DefaultAliases() map[string]string {
	return map[string]string{
		"k8s":     "Kubernetes",
		"kube":    "Kubernetes",
		"js":      "JavaScript",
		"ts":      "TypeScript",
		"golang":  "Go",
		"postgre": "PostgreSQL",
		"pg":      "PostgreSQL",
		"es":      "Elasticsearch",
		"ml":      "机器学习",
		"nlp":     "自然语言处理",
		"hrd":     "人力资源总监",
		"hrbp":    "人力资源业务伙伴",
		"pm":      "产品经理",
		"qa":      "测试工程师",
		"前端":      "前端开发工程师",
		"后端":      "后端开发工程师",
		"算法":      "算法工程师",
	}
}

// cjkMarker temporarily stands in for canonical terms during replacement so
// an alias embedded in its own canonical form is never expanded twice.
const cjkMarker = "\x00"

// Apply rewrites every known alias in text to its canonical term. Applying
// it to already-canonical text is a no-op.
func (d *Dictionary) Apply(text string) string {
	for _, rule := range d.asciiRules {
		text = rule.pattern.ReplaceAllString(text, rule.canonical)
	}
	for _, rule := range d.cjkRules {
		if strings.HasPrefix(rule.canonical, rule.alias) && strings.Contains(text, rule.canonical) {
			text = strings.ReplaceAll(text, rule.canonical, cjkMarker)
			text = strings.ReplaceAll(text, rule.alias, rule.canonical)
			text = strings.ReplaceAll(text, cjkMarker, rule.canonical)
			continue
		}
		text = strings.ReplaceAll(text, rule.alias, rule.canonical)
	}
	return text
}

// ContainsAlias reports whether text still holds a known alias. An alias
// occurring only inside its own canonical term does not count.
func (d *Dictionary) ContainsAlias(text string) bool {
	for _, rule := range d.asciiRules {
		if rule.pattern.MatchString(text) {
			return true
		}
	}
	for _, rule := range d.cjkRules {
		probe := text
		if strings.HasPrefix(rule.canonical, rule.alias) {
			probe = strings.ReplaceAll(probe, rule.canonical, "")
		}
		if strings.Contains(probe, rule.alias) {
			return true
		}
	}
	return false
}

// unmappedAliasPattern spots text that looks like shorthand the dictionary
// did not cover: bare salary units ("25k", "30万") and standalone acronyms.
var unmappedAliasPattern = regexp.MustCompile(`\d+(?:k|K|万)|年薪|\b[A-Z]{2,5}\b`)

// HasUnmappedAliasPattern reports whether text still looks like it carries
// shorthand after the dictionary pass.
func (d *Dictionary) HasUnmappedAliasPattern(text string) bool {
	return unmappedAliasPattern.MatchString(text)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
