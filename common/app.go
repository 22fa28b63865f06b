package common

import "time"

// App metadata.
const (
	AppName    = "netsot"
	AppVersion = "0.3.0"
	AppAuthor  = "HON95"
)

// PrometheusNamespace - Prometheus metrics namespace.
const PrometheusNamespace = "netsot"

// DefaultTimeout - Default timeout for a single external call (HTTP request, SSH command, SNMP walk).
const DefaultTimeout = 10 * time.Second
