package main

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type ProxyManager struct {
	mu             sync.Mutex
	index          int
	proxies        []*Proxy
	leases         map[string]string
	leasesByTaskId map[string]string
}

type Proxy struct {
	hash string
	url  *url.URL
}

func NewProxyManager() *ProxyManager {
	pm := new(ProxyManager)
	pm.proxies = []*Proxy{}
	pm.leases = make(map[string]string)
	pm.leasesByTaskId = make(map[string]string)
	pm.index = 0
	return pm
}

func (pm *ProxyManager) Read(filename string) error {
	proxyFile, err := os.Open(filename)

	if err != nil {
		return errors.Wrap(err, "unable to read proxy file")
	}

	defer proxyFile.Close()

	proxyFileScanner := bufio.NewScanner(proxyFile)
	proxyFileScanner.Split(bufio.ScanLines)

	for proxyFileScanner.Scan() {
		line := strings.TrimSpace(proxyFileScanner.Text())

		if line == "" {
			continue
		}

		if err := pm.AddProxy(line); err != nil {
			return err
		}
	}

	return nil
}

func (pm *ProxyManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies)
}

// AddProxy accepts host:port or host:port:username:password lines.
func (pm *ProxyManager) AddProxy(proxy string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	parts := strings.Split(proxy, ":")

	if len(parts) != 2 && len(parts) != 4 {
		return errors.Errorf("unable to parse proxy line: %s", proxy)
	}

	u := &url.URL{
		Scheme: "http",
		Host:   fmt.Sprintf("%s:%s", parts[0], parts[1]),
	}

	if len(parts) == 4 {
		u.User = url.UserPassword(parts[2], parts[3])
	}

	p := &Proxy{url: u}
	p.hash = fmt.Sprintf("%x", md5.Sum([]byte(proxy)))

	pm.proxies = append(pm.proxies, p)

	return nil
}

func (pm *ProxyManager) AddProxies(proxies ...string) error {
	for _, proxy := range proxies {
		if err := pm.AddProxy(proxy); err != nil {
			return err
		}
	}

	return nil
}

func (pm *ProxyManager) unlease(taskId string) {
	pHash := pm.leasesByTaskId[taskId]

	delete(pm.leases, pHash)
	delete(pm.leasesByTaskId, taskId)
}

// Lease rotates through the pool preferring unleased proxies, falling back
// to sharing once every proxy is leased out.
func (pm *ProxyManager) Lease(taskId string) (*url.URL, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return nil, errors.New("no proxies available")
	}

	pm.unlease(taskId)

	var fallback *Proxy

	for attempts := 0; attempts < len(pm.proxies); attempts++ {

		i := pm.index
		pm.index = i + 1

		if pm.index == len(pm.proxies) {
			pm.index = 0
		}

		p := pm.proxies[i]

		if fallback == nil {
			fallback = p
		}

		if _, ok := pm.leases[p.hash]; !ok {
			pm.leasesByTaskId[taskId] = p.hash
			pm.leases[p.hash] = taskId

			return p.url, nil
		}

	}

	return fallback.url, nil

}
