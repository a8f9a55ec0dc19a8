package store

import (
	"sort"
	"strings"
	"sync"
)

// keyPager serves sorted key listings page by page for backends that can
// only walk a whole tree. One walk is cached per prefix until its last page
// has been handed out; the continuation token is the last key served.
type keyPager struct {
	mu       sync.Mutex
	listings map[string][]string
	pageSize int
}

func newKeyPager(pageSize int) *keyPager {
	return &keyPager{listings: make(map[string][]string), pageSize: pageSize}
}

func (p *keyPager) setPageSize(n int) {
	if n > 0 {
		p.pageSize = n
	}
}

// page returns the keys of the page after token. walk is called to build a
// fresh listing when token is empty or nothing is cached for prefix.
func (p *keyPager) page(prefix, token string, walk func() ([]string, error)) ([]string, string, error) {
	keys, err := p.keys(prefix, token == "", walk)
	if err != nil {
		return nil, "", err
	}

	start := 0
	if token != "" {
		start = sort.SearchStrings(keys, token)
		if start < len(keys) && keys[start] == token {
			start++
		}
	}
	end := min(start+p.pageSize, len(keys))

	if end < len(keys) {
		return keys[start:end], keys[end-1], nil
	}

	p.mu.Lock()
	delete(p.listings, prefix)
	p.mu.Unlock()
	return keys[start:end], "", nil
}

func (p *keyPager) keys(prefix string, fresh bool, walk func() ([]string, error)) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if keys, ok := p.listings[prefix]; ok && !fresh {
		return keys, nil
	}

	all, err := walk()
	if err != nil {
		return nil, err
	}
	keys := all[:0]
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	p.listings[prefix] = keys
	return keys, nil
}
