// Package layout is a headless stand-in for a rendering engine. It flows an
// HTML fragment into lines of a fixed width using pluggable text metrics and
// answers the one question pagination needs: does the content fit?
//
// The model handles block and inline elements, collapsed whitespace, <pre>,
// <br>, list markers, blockquote indentation, soft-hyphen breaks and image
// boxes sized by their width and height attributes. It does not interpret
// CSS.
package layout
