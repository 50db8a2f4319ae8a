// Package backend models one upstream server instance: its endpoint,
// selection weight, health-probe path, open-connection count and response
// time average, plus the reverse proxy used to forward requests to it.
// Backends declared in different routes never share state, even when their
// endpoints are equal.
package backend
