// Package config loads the laia application configuration.
//
// Configuration is YAML, decoded on top of Default so a file only needs the
// keys it changes:
//
//	telemetry:
//	  logging:
//	    level: debug
//	store:
//	  path: runs.db
//	phoc:
//	  levels: [1, 2, 3]
//
// Struct constraints are checked with go-playground/validator; the telemetry
// section is also checked by its own package.
package config
