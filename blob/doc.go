// Package blob prepares guest code for repeated instantiation.
//
// A RuntimeBlob is the parsed form of a code blob, optionally zstd
// compressed behind an 8-byte prefix. Before a Runtime serializes it, the
// blob is rewritten so every internal mutable global is exported, then two
// facts are captured from it:
//
//   - DataSegmentsSnapshot: the (offset, bytes) pairs of the static data
//     section, written back into linear memory before every call.
//   - MutableGlobalsSet: the export names of mutable globals. Their values
//     are read once per instance into a GlobalsSnapshot and restored before
//     every call.
package blob
