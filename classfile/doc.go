// Package classfile provides JVM class file parsing and encoding.
//
// The package decodes exactly as much of a class file as an instruction
// rewriter needs and keeps everything else raw, so that an untouched class
// re-encodes byte for byte:
//
//	constant pool       raw entries (Long/Double take two slots)
//	fields, methods     access flags, name/descriptor indices, raw attributes
//	Code attribute      decoded on demand by ParseCode
//	Code sub-attributes raw; typed codecs for LineNumberTable,
//	                    LocalVariable(Type)Table and StackMapTable
//
// # Parsing
//
//	data, _ := os.ReadFile("Foo.class")
//	class, err := classfile.Parse(data)
//	if err != nil {
//	    log.Fatal(err) // matches errors.ErrMalformedClassFile
//	}
//
// # Instructions
//
// Decode a method body:
//
//	code, _, err := class.Methods[i].Code(class.Pool)
//	instrs, err := classfile.DecodeInstructions(code.Bytecode)
//
// Encode instructions back to bytecode:
//
//	bytecode, err := classfile.EncodeInstructions(instrs)
//
// Branch and switch operands stay relative, as in the class file. Offsets
// are recomputed by the caller (see package insnlist).
//
// # Encoding
//
//	out := class.Encode()
package classfile
