// Package ws implements the WebSocket hub of the dbfleet server.
//
// Hub manages a set of connected clients and pushes the fleet snapshot to all
// of them whenever the store publishes a new one, and on a fixed interval so
// idle clients still see suppression changes and stay alive.
//
// New(store, registry, interval) creates a Hub.
// Hub.Run(ctx) blocks until ctx is cancelled, then closes all connections.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket and sends the current
// snapshot immediately on connect. /ws/stream?engine=mongodb limits a
// connection to one engine; counts in its messages cover that engine only.
//
// Message format sent to clients:
//
//	{
//	  "event": "snapshot",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The hub is mounted at /ws/stream by the server.
package ws
