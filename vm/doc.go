// Package vm implements the raster-algebra runtime.
//
// This package contains:
//   - The raster model (Raster, WritableRaster, Buffer) and its CBOR container
//   - The function registry consulted by the compiler
//   - Bytecode chunks, opcodes and the dispatch loop that runs them
//   - Program, the immutable compiled unit, and Runtime, one binding of a
//     Program to concrete images
package vm
