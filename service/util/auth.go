package util

import (
	"crypto/subtle"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
)

// VerifyAPIKey accepts the key as a bearer token or as the password of
// basic auth (any username).
func VerifyAPIKey(r *http.Request, apiKey string) bool {
	secret, ok := requestSecret(r.Header.Get("Authorization"))
	if !ok || apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(apiKey)) == 1
}

func requestSecret(header string) (string, bool) {
	scheme, value, found := strings.Cut(header, " ")
	if !found {
		return "", false
	}

	switch scheme {
	case "Bearer":
		return value, value != ""
	case "Basic":
		decoded, err := base64.StdEncoding.DecodeString(value)
		if err != nil {
			return "", false
		}
		_, password, found := strings.Cut(string(decoded), ":")
		return password, found
	default:
		return "", false
	}
}

func GetClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}

func IsLocalhost(ip string) bool {
	parsedIP := net.ParseIP(ip)
	return parsedIP != nil && parsedIP.IsLoopback()
}

func GetLANIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() && ipNet.IP.To4() != nil {
			return ipNet.IP.String()
		}
	}
	return ""
}
