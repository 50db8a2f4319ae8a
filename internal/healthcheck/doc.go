// Package healthcheck keeps backend health flags current by probing each
// backend's health endpoint on a fixed interval. Routing never waits on a
// probe: requests read the flags the last completed sweep left behind.
package healthcheck
