// Package config loads the daemon configuration.
//
// # Configuration Sources
//
// Sources are applied in this order, later ones winning:
//
//	1. Default() values
//	2. A YAML file (explicit path, or the first of DefaultConfigLocations)
//	3. Environment variables prefixed with ASYNCOPS_
//
// # Environment Variables
//
// Nested sections join with underscores:
//
//	ASYNCOPS_SERVER_PORT=9090
//	ASYNCOPS_LOGGING_LEVEL=debug
//	ASYNCOPS_ORCHESTRATOR_GRACE_PERIOD=10s
//	ASYNCOPS_SECURITY_ALLOWED_ORIGINS=http://localhost:3000,https://ops.example.com
//
// # Example File
//
//	server:
//	  port: 8080
//	orchestrator:
//	  grace_period: 5s
//	  default_poll_interval: 1s
//	websocket:
//	  ping_period: 30s
//	  pong_wait: 60s
//
// Load validates the result and reports every problem at once.
package config
