// Package site implements the build engine: it loads site settings, the active theme and the
// published articles, renders every page into a staging directory and atomically promotes the
// staging directory to the output directory.
//
// A build runs as an ordered list of named stages (see stages.go). Fatal stage errors abort
// the build and remove the staging directory so the previous output stays untouched; warning
// stage errors are recorded in the build report and the build continues.
package site
