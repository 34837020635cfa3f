// Package publish synchronizes a generated site with a remote git repository.
//
// The git metadata lives in its own directory (typically <data_dir>/repository.git) while the
// site output directory serves as the work tree, so the build engine can swap the output
// directory between publishes. Each publish fetches the remote branch, refuses to proceed
// when the remote has diverged (unless forced), stages the difference between the manifest
// and the last published tree, commits and pushes. A failed commit or push restores the
// branch reference and the index.
package publish
