// Package cli implements the peekraw command line.
//
// Commands:
//
//	peekraw scan <path>...     fill the thumbnail cache and report failures
//	peekraw serve [path...]    serve the gallery API over HTTP
//	peekraw cache stats        show disk cache usage
//	peekraw cache purge        delete every cached thumbnail
//
// Every persistent flag overrides the environment variable named in its
// help text; unset flags leave the environment in charge.
package cli
