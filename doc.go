// Package checkcastremover removes duplicated CHECKCAST instructions from
// compiled JVM class files.
//
// javac compiles a cast of an already cast expression, as in
// (Integer) (obj), to two identical adjacent checkcast instructions. The
// second one can never fail once the first succeeded. This module rewrites
// the class file without it, keeping every branch, exception range and
// debug table consistent.
//
// # Architecture Overview
//
//	checkcastremover/
//	├── classfile/               Class file parsing, encoding and bytecode codec
//	├── insnlist/                Editable instruction list with targeter tracking
//	├── rewrite/                 Method, class and file level rewriting
//	├── errors/                  Structured error types
//	└── cmd/checkcast-remover/   Command line tool
//
// # Quick Start
//
// Rewrite a class file in place:
//
//	report, err := rewrite.File("Foo.class")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, line := range report.Lines() {
//	    fmt.Println(line) // Removed 1 duplicated CHECKCAST instructions from Foo#bar
//	}
//
// Or work on bytes:
//
//	out, report, err := rewrite.Bytes(data, rewrite.WithWorkers(4))
//
// # Instruction Lists
//
// Package insnlist loads a Code attribute into a list of instructions
// addressed by stable handles. Branches, exception handlers, line numbers,
// local variable ranges and stack map frames refer to instructions by
// handle, so deleting an instruction is a two step operation: redirect its
// targeters, then unlink it.
//
//	list, err := insnlist.Load(code, pool)
//	for m := range list.Find(insnlist.DuplicateCheckcast) {
//	    if err := list.DeleteRetarget(m[1], m[0]); err != nil {
//	        return err
//	    }
//	}
//	code, err = list.Finalize()
//
// # Error Handling
//
// Errors are *errors.Error values carrying the phase, kind and location of
// the failure:
//
//	if errors.Is(err, errors.ErrMalformedClassFile) {
//	    // input is not a valid class file
//	}
//
// # Logging
//
// Library packages log through zap and are silent by default. Install a
// logger with insnlist.SetLogger and rewrite.SetLogger.
package checkcastremover
