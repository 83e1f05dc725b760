// Package gateway is the module root; it carries only the build-time
// version string referenced by the runtime information block in agent
// prompts.
package gateway

// VERSION is the gateway build version, overridable at link time with
// -ldflags "-X github.com/deca-sh/gateway.VERSION=...".
var VERSION = "dev"
