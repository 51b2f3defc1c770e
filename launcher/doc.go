// Package launcher is the command line of a worker process.
//
// A process registers its workers and producers in a Setup function and hands it to
// New. The resulting command offers:
//
//	workers run [names...]        run every worker, or the named ones, until shutdown
//	workers list                  print the registrations
//	workers schemas [producers...] [--create] [--test-compatibility] [--quiet]
//
// Configuration comes from a YAML file (--config) overlaid with KAFKA_WORKERS_*
// environment variables:
//
//	broker_url: localhost:9092
//	schema_registry_url: http://localhost:8081
//	consumer_group_prefix: billing-
//	log_level: info
//	shutdown_timeout: 30s
//	metrics:
//	  system_address: ":9090"
//	tracing:
//	  enable_export: true
//	workers:
//	  orders:
//	    max_attempts: 5
//	    settings:
//	      fetch.wait.max.ms: 100
//
// SIGINT and SIGTERM set the shared shutdown flag. Each worker finishes its current
// unit of work, tears down and exits; run returns an error when any worker failed.
package launcher
