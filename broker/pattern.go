package broker

import (
	"regexp"
	"strings"
)

// binding associates one compiled routing pattern with a destination queue.
// Bindings are stored per exchange, keyed by the literal pattern string, so
// rebinding an identical pattern overwrites the previous destination.
type binding struct {
	pattern string
	queue   string
	matcher *regexp.Regexp // nil for patterns without wildcards
}

// compileBinding turns an AMQP-style topic pattern into a binding. A "#"
// matches any sequence of characters, dots included; failing that, a "*"
// matches exactly one dot-free segment. Patterns without either wildcard
// match only the identical routing key, via plain string comparison.
func compileBinding(pattern, queue string) binding {
	b := binding{pattern: pattern, queue: queue}

	switch {
	case strings.Contains(pattern, "#"):
		expr := strings.ReplaceAll(regexp.QuoteMeta(pattern), "#", ".*")
		b.matcher = regexp.MustCompile("^" + expr + "$")
	case strings.Contains(pattern, "*"):
		expr := strings.ReplaceAll(regexp.QuoteMeta(pattern), `\*`, `[^.]+`)
		b.matcher = regexp.MustCompile("^" + expr + "$")
	}
	return b
}

// matches reports whether the routing key satisfies this binding. The
// compiled matcher is anchored, so the whole key must match.
func (b binding) matches(routingKey string) bool {
	if b.matcher == nil {
		return b.pattern == routingKey
	}
	return b.matcher.MatchString(routingKey)
}
