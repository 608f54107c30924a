// Package sheet is the spreadsheet codec. It decodes job workbooks in either
// the named-header or the legacy positional layout, encodes job lists back to
// the canonical layout, and rewrites status cells in place.
//
// Every rewrite re-reads the workbook from disk, touches only the targeted
// cells and replaces the file atomically. Writers to the same path are
// serialized in-process and, when a lock directory is configured, across
// processes through flock.
package sheet
