// Package vm implements the Amber abstract machine.
//
// This package contains:
//   - Fixed-layout module header codec and validation
//   - The unified address space (code, static data, heap, stack in one image)
//   - Symbol table loaders for publics, natives, pubvars and tags
//   - Fixed-width instruction decoding
//   - The fetch-decode-execute loop with the full opcode set
//   - Native function registration and dispatch
//   - Module building, disassembly and machine state snapshots
package vm
