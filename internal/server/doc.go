// Package server hosts the Fiber HTTP service, the request middleware chain
// and the store registry that turns every [[Store]] table of the config into
// an initialised cache directory. The first path segment of a request selects
// the store; everything after it is handed to the proxy handler together with
// the resolved StoreRoute. Keep exports narrow and accept explicit
// dependencies so tests can swap the proxy handler and the filesystem.
package server
