// Package jobs defines the generation-job data model shared by the codec,
// scanner, reconciler and every transport layer.
//
// Status is a closed enumeration; only the spreadsheet codec and the API
// boundary translate it to and from its string wire form.
package jobs
