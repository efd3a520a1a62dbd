// Package config loads statetree.yaml (or statetree.json) for the statetree
// command.
//
// # Configuration File Structure
//
//	name: todos
//	debug: false
//	inspect:
//	  host: localhost
//	  port: 7070
//	  metrics_path: /metrics
//	  read_only: false
//	  allowed_origins: [http://localhost:3000]
//	metrics:
//	  namespace: statetree
//	  buckets: [0.000001, 0.00001, 0.0001, 0.001]
//	tracing:
//	  tracer_name: github.com/vango-dev/statetree
//	log:
//	  level: info
//	  format: text
//	  slow_compute_ms: 50
//
// Missing fields get defaults. Unknown keys are rejected.
package config
