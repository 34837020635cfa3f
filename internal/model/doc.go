// Package model defines the content types shared by the stores, the build engine and the
// themes: site settings, articles and their binary resources.
package model
