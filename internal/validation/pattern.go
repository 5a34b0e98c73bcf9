package validation

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-метрики кэша шаблонов проверки.
var (
	patternCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sd_validation_pattern_cache_hits_total",
		Help: "Общее количество попаданий в кэш скомпилированных шаблонов проверки.",
	})
	patternCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sd_validation_pattern_cache_misses_total",
		Help: "Общее количество промахов кэша скомпилированных шаблонов проверки.",
	})
)

// patternCacheTTL — время жизни скомпилированного шаблона в кэше.
const patternCacheTTL = time.Hour

// phpFlags — флаги, допустимые после закрывающего разделителя /.../flags.
// u в Go не нужен: regexp всегда работает с UTF-8.
var phpFlags = map[rune]string{'i': "i", 'm': "m", 's': "s", 'u': ""}

// patternCache — LRU-кэш скомпилированных регулярных выражений.
// Ключ — исходная строка шаблона из TemplateField.
type patternCache struct {
	cache *expirable.LRU[string, *regexp.Regexp]
}

func newPatternCache(size int) *patternCache {
	return &patternCache{
		cache: expirable.NewLRU[string, *regexp.Regexp](size, nil, patternCacheTTL),
	}
}

// get возвращает скомпилированный шаблон или ошибку компиляции.
// Ошибки не кэшируются.
func (c *patternCache) get(pattern string) (*regexp.Regexp, error) {
	if re, ok := c.cache.Get(pattern); ok {
		patternCacheHitsTotal.Inc()
		return re, nil
	}
	patternCacheMissesTotal.Inc()

	re, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	c.cache.Add(pattern, re)
	return re, nil
}

// compilePattern компилирует шаблон для полного совпадения.
// Поддерживается запись с разделителями /body/flags.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	body, flags := splitDelimited(pattern)

	expr := `\A(?:` + body + `)\z`
	if flags != "" {
		expr = "(?" + flags + ")" + expr
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: шаблон %q: %v", ErrInvalidSchema, pattern, err)
	}
	return re, nil
}

// splitDelimited отделяет тело и флаги у шаблона вида /body/flags.
// Если после последнего / стоят не флаги (например /home/.*),
// вся строка считается выражением.
func splitDelimited(pattern string) (body, flags string) {
	if !strings.HasPrefix(pattern, "/") {
		return pattern, ""
	}
	end := strings.LastIndex(pattern, "/")
	if end == 0 {
		// Единственный слэш — часть выражения
		return pattern, ""
	}

	var b strings.Builder
	for _, r := range pattern[end+1:] {
		f, ok := phpFlags[r]
		if !ok {
			return pattern, ""
		}
		if !strings.Contains(b.String(), f) {
			b.WriteString(f)
		}
	}
	return pattern[1:end], b.String()
}
