// Package server hosts the Fiber HTTP service, request middleware chain, and
// the cache registry glue that wires named cache instances into entry
// handlers. A single binary bootstraps Fiber, attaches logging and recovery
// middlewares, injects the CacheRegistry built from config, and exposes
// router constructors that other packages (main, routes) can reuse. Future
// phases may extend this package with TLS, metrics endpoints, or admin
// surfaces, so keep exports narrow and accept explicit dependencies.
package server
