// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package proxy provides the HTTP handler that fronts a hosted prediction API
// for browser clients. It answers CORS preflights locally, forwards POST
// bodies to a fixed upstream endpoint with the deployment's bearer token, and
// relays the upstream status and JSON body unchanged. Proxy-only fields in the
// request body (prefer, wait) are turned into a Prefer header instead of being
// forwarded.
package proxy
