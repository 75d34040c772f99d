// Package document implements the in-memory JSON value tree and path
// resolution over it.
//
// # Values
//
// A [Value] is a tagged union over null, bool, number, string, sequence and
// mapping. Mappings preserve insertion order and numbers keep their literal
// text, so [Parse] followed by [Value.AppendJSON] reproduces the document.
//
// # Paths
//
// [Resolve] walks a list of string segments from a root value, one segment per
// level. Mapping children are looked up by key. Sequence children are looked up
// by their logical id: the first element that is a mapping whose "id" field is
// an integer equal to the segment. Every failure is reported as a
// [*NotFoundError] naming the segment that did not resolve.
//
// The returned *Value aliases the tree; mutate it in place with [Value.Set],
// [Value.Append], [Value.Replace] and friends.
package document
