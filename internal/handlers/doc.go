// Package handlers provides the HTTP API of the gallery server.
//
// It includes handlers for:
//   - Opening folders and files and refreshing the gallery
//   - Listing items and following snapshot changes
//   - Serving thumbnails and full-size images
//   - Health checks, version and statistics
package handlers
