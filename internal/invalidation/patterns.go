package invalidation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// compileWildcard turns a wildcard pattern like "badges:user:U1:*" into an
// anchored regular expression. Everything except "*" is matched literally.
func compileWildcard(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}

	re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", pattern, err)
	}

	return re, nil
}

// patternCache memoizes compiled patterns so each distinct resolved pattern
// is compiled exactly once, however often events repeat it.
type patternCache struct {
	mu       sync.RWMutex
	compiled map[string]*regexp.Regexp
}

func newPatternCache() *patternCache {
	return &patternCache{compiled: make(map[string]*regexp.Regexp)}
}

func (c *patternCache) get(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	re, ok := c.compiled[pattern]
	c.mu.RUnlock()

	if ok {
		return re, nil
	}

	re, err := compileWildcard(pattern)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.compiled[pattern] = re
	c.mu.Unlock()

	return re, nil
}
