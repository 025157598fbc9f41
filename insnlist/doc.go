// Package insnlist provides an editable instruction list for a single
// method body.
//
// A List is built from a classfile.Code with Load. Every instruction gets a
// Handle that stays valid while the list is edited. Anything that refers to
// an instruction is a Targeter:
//
//	Branch              a branch or switch instruction
//	HandlerRange        an exception table entry (inclusive end)
//	LocalVariableRange  a LocalVariableTable or LocalVariableTypeTable entry
//	LineEntry           a LineNumberTable entry
//	Frame               a StackMapTable frame, including uninitialized(offset) types
//
// Targeters of an instruction are found with TargetersOf. Delete refuses to
// remove an instruction that is still targeted; PlanDelete and Commit
// redirect the targeters first. Finalize lays the list out again and
// produces a Code attribute with every offset recomputed.
package insnlist
