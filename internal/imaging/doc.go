// Package imaging provides the owned pixel buffer used by the edit history and
// the helpers that move pixels in and out of it.
//
// # Buffers and Ownership
//
// A Buffer is an explicitly managed block of interleaved 8-bit pixels with 1,
// 3 or 4 channels. It is treated like a native image handle rather than an
// ordinary Go value:
//   - exactly one owner at a time; everyone else borrows it for one call
//   - Clone is the only way to get a second, independent owner
//   - the owner calls Release exactly once when the buffer leaves the model
//   - any access after Release panics
//
// A Tracker can be attached when buffers are created. It is inherited by
// clones and by transform results, and counts allocations, releases and double
// releases so tests can prove that nothing leaks.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner, X
// increasing rightward and Y increasing downward.
//
// # Decoding and Encoding
//
// ImageCache decodes PNG, JPEG, GIF, BMP, TIFF and WebP files and caches the
// decoded image by path; LoadBuffer and DecodeBuffer always hand back a new
// buffer owned by the caller. EncodePNG renders a buffer as base64 PNG for
// display, EncodeRegion renders one NamedRegion of it, and Export writes it
// to disk.
//
// # Thread Safety
//
// ImageCache and Tracker are safe for concurrent use. Buffers are not
// synchronized; their owner serializes mutation.
package imaging
