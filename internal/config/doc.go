// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation,
// which keeps credentials out of the file itself:
//
//	credentials:
//	  name: ${TRADOVATE_USER}
//	  password: ${TRADOVATE_PASS}
package config
