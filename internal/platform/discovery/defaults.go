// Package discovery centralizes in-network address conventions for the
// services pricedesk reads from.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceQuotes is the quote listing data service.
	ServiceQuotes = "quotes"
	// ServiceJaeger is the trace collector UI.
	ServiceJaeger = "jaeger"
)

type endpoints struct {
	grpc int
	http int
}

var ports = map[string]endpoints{
	ServiceQuotes: {grpc: 8096, http: 8095},
	ServiceJaeger: {http: 16686},
}

// DefaultGRPCAddr returns the conventional gRPC host:port for service.
func DefaultGRPCAddr(service string) string {
	service = strings.TrimSpace(service)
	return hostPort(service, ports[service].grpc)
}

// OrDefaultGRPCAddr returns value when set, otherwise the convention.
func OrDefaultGRPCAddr(value, service string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrDefaultHTTPBaseURL returns value when set, otherwise http://host:port.
func OrDefaultHTTPBaseURL(value, service string) string {
	if value = strings.TrimSpace(value); value != "" {
		return strings.TrimRight(value, "/")
	}
	service = strings.TrimSpace(service)
	addr := hostPort(service, ports[service].http)
	if addr == "" {
		return ""
	}
	return "http://" + addr
}

func hostPort(service string, port int) string {
	if service == "" || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
