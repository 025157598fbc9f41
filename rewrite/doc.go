// Package rewrite removes duplicated adjacent checkcast instructions from
// methods, classes and class files.
//
// Method handles a single method. Class applies it to every method with a
// body, optionally in parallel, and collects a Report. Bytes and File wrap
// Class with parsing, encoding and an atomic in-place write.
package rewrite
