// Package filesource produces the batches of file references the gallery
// works on.
//
// Enumerate walks a folder recursively and keeps gallery files (RAW and
// rendered images, see mediatypes). Hidden entries are skipped unless
// Options.IncludeHidden is set. Pick mirrors a document picker: folders are
// enumerated, files are taken as-is, and the parent of the last selection
// is stored in the settings as the last opened folder.
//
// Entries that cannot be read never abort a walk under the default policy:
//
//	ignore  debug log only
//	warn    warning log, recorded in Listing.Skipped (default)
//	strict  the first unreadable entry fails the enumeration
//
// An unreadable root folder is always an error.
package filesource
