/*
Package servers runs the HTTP API of the secret management service.

Server wraps the route handlers with request logging, Prometheus
instrumentation and per-address rate limiting of write requests, and adds
the operational endpoints:

	GET /livez     liveness check
	GET /readyz    readiness check, 503 while draining
	GET /drain     mark the server not ready
	GET /undrain   mark the server ready again
	    /debug/*   pprof, when enabled

Metrics are served by a separate listener on MetricsAddr.

# Example Usage

	cfg := &api.HTTPServerConfig{
	    ListenAddr:     ":8080",
	    MetricsAddr:    ":9090",
	    Log:            logger,
	    DrainDuration:  30 * time.Second,
	    ReadTimeout:    5 * time.Second,
	    WriteTimeout:   10 * time.Second,
	    WriteRateLimit: 5,
	    WriteRateBurst: 10,
	}

	server, err := servers.New(cfg, handler)
	if err != nil {
	    log.Fatalf("Failed to create server: %v", err)
	}
	server.RunInBackground()
	defer server.Shutdown()
*/
package servers
