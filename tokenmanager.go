package main

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type TokenManager struct {
	mu     sync.Mutex
	index  int
	tokens []*TokenItem
	seen   map[string]bool
}

type TokenItem struct {
	hash  string
	token string
}

func NewTokenManager() *TokenManager {
	tm := new(TokenManager)
	tm.seen = make(map[string]bool)
	tm.index = 0
	return tm
}

func (tm *TokenManager) Read(filename string) error {
	tokenFile, err := os.Open(filename)

	if err != nil {
		return errors.Wrap(err, "unable to read token file")
	}

	defer tokenFile.Close()

	tokenFileScanner := bufio.NewScanner(tokenFile)
	tokenFileScanner.Split(bufio.ScanLines)

	for tokenFileScanner.Scan() {
		line := strings.TrimSpace(tokenFileScanner.Text())

		if line == "" {
			continue
		}

		tm.AddToken(line)
	}

	return nil
}

func (tm *TokenManager) Count() int {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return len(tm.tokens)
}

func (tm *TokenManager) AddToken(token string) *TokenItem {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	hash := fmt.Sprintf("%x", md5.Sum([]byte(token)))

	// tokens are single use, duplicates would only burn a verification
	if tm.seen[hash] {
		return nil
	}

	tm.seen[hash] = true

	ti := &TokenItem{hash: hash, token: token}
	tm.tokens = append(tm.tokens, ti)

	return ti
}

func (tm *TokenManager) AddTokens(tokens ...string) {
	for _, token := range tokens {
		tm.AddToken(token)
	}
}

// Next hands out each token exactly once. ok is false once the list is
// exhausted.
func (tm *TokenManager) Next() (*TokenItem, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.index == len(tm.tokens) {
		return nil, false
	}

	ti := tm.tokens[tm.index]
	tm.index = tm.index + 1

	return ti, true
}
