package logger

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// parsedProxiesContainer holds pre-parsed trusted proxy IP addresses and CIDR blocks.
type parsedProxiesContainer struct {
	cidrs []*net.IPNet
	ips   []net.IP
}

// preParseTrustedProxies converts string representations of IPs and CIDRs
// into net.IP and *net.IPNet objects for efficient checking.
func preParseTrustedProxies(proxyStrings []string) (parsedProxiesContainer, error) {
	var container parsedProxiesContainer
	for _, pStr := range proxyStrings {
		pStr = strings.TrimSpace(pStr)
		if pStr == "" {
			return parsedProxiesContainer{}, fmt.Errorf("empty entry in trusted_proxies")
		}
		if strings.Contains(pStr, "/") {
			_, ipNet, err := net.ParseCIDR(pStr)
			if err != nil {
				return parsedProxiesContainer{}, fmt.Errorf("invalid CIDR string in trusted_proxies '%s': %w", pStr, err)
			}
			container.cidrs = append(container.cidrs, ipNet)
			continue
		}
		ip := net.ParseIP(pStr)
		if ip == nil {
			return parsedProxiesContainer{}, fmt.Errorf("invalid IP string in trusted_proxies '%s'", pStr)
		}
		container.ips = append(container.ips, ip)
	}
	return container, nil
}

func isIPTrusted(ip net.IP, trusted parsedProxiesContainer) bool {
	if ip == nil {
		return false
	}
	for _, c := range trusted.cidrs {
		if c.Contains(ip) {
			return true
		}
	}
	for _, t := range trusted.ips {
		if t.Equal(ip) {
			return true
		}
	}
	return false
}

func splitRemote(remoteAddr string) (host, port string) {
	host, port, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr, "0"
	}
	return host, port
}

// getRealClientIP determines the client address. When realIPHeaderName is set
// and present, the header (e.g. "client, proxy1, proxy2") is walked from the
// right and the first address that is not a trusted proxy wins. A malformed
// entry makes the header unreliable and the direct peer is used instead.
func getRealClientIP(remoteAddr string, headers http.Header, realIPHeaderName string, trusted parsedProxiesContainer) string {
	peer, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		peer = remoteAddr
		if ip := net.ParseIP(remoteAddr); ip != nil {
			peer = ip.String()
		}
	}

	if realIPHeaderName == "" {
		return peer
	}
	headerValue := headers.Get(realIPHeaderName)
	if headerValue == "" {
		return peer
	}

	parts := strings.Split(headerValue, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ipStr := strings.TrimSpace(parts[i])
		if ipStr == "" {
			continue
		}
		ip := net.ParseIP(ipStr)
		if ip == nil {
			return peer
		}
		if !isIPTrusted(ip, trusted) {
			return ipStr
		}
	}
	return peer
}
