// Package timeouts defines the timeout constants shared by pricedesk
// commands and gateways.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC data source, including its
// health check.
const GRPCDial = 2 * time.Second

// FetchPage caps one remote page fetch issued by a grid gateway.
const FetchPage = 10 * time.Second

// ProbeWindow caps how long the probe waits for one window to settle.
const ProbeWindow = 30 * time.Second

// Shutdown limits how long telemetry gets to flush on exit.
const Shutdown = 5 * time.Second
