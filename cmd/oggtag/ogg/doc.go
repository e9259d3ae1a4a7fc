// Package ogg reads the page structure of Ogg physical streams and rewrites
// the header packets of a logical stream while leaving every byte after
// them untouched.
//
// Pages are parsed from an io.ReaderAt so that only the pages needed to
// collect header packets are ever read. Scan returns a Layout describing the
// logical streams and, for each of them, the offset from which the file is
// never modified by Rewrite.
package ogg
