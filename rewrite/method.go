package rewrite

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
	"github.com/slarse/duplicate-checkcast-remover/errors"
	"github.com/slarse/duplicate-checkcast-remover/insnlist"
)

// Result is the outcome of rewriting one method.
type Result struct {
	// Method is the rewritten method, or a copy of the input when
	// Changed is false.
	Method classfile.Method
	// Before and After hold the bytecode around the rewrite. They are nil
	// when the method was not changed.
	Before  []byte
	After   []byte
	Removed int
	Changed bool
}

var errUnsupported = &errors.Error{Phase: errors.PhaseLoad, Kind: errors.KindUnsupported}

// Method removes duplicated adjacent checkcast instructions from m.
//
// Every match is collapsed onto its first instruction; branches, exception
// ranges and debug tables that referenced a removed instruction are
// redirected to the retained one. m itself is never modified. className is
// used for log fields and error paths only.
//
// A method whose Code attribute carries offsets that cannot be remapped is
// reported unchanged.
func Method(m *classfile.Method, pool *classfile.ConstantPool, className string) (Result, error) {
	name := m.Name(pool)
	unchanged := Result{Method: m.Clone()}

	code, _, err := m.Code(pool)
	if err != nil {
		return Result{}, errors.WithPath(err, className, name)
	}
	if code == nil {
		return unchanged, nil
	}

	list, err := insnlist.Load(code, pool)
	if stderrors.Is(err, errUnsupported) {
		Logger().Warn("skipping method",
			zap.String("class", className),
			zap.String("method", name),
			zap.Error(err))
		return unchanged, nil
	}
	if err != nil {
		return Result{}, errors.WithPath(err, className, name)
	}

	removed := 0
	for match := range list.Find(insnlist.DuplicateCheckcast) {
		retained, duplicate := match[0], match[1]
		Logger().Debug("duplicate checkcast",
			zap.String("class", className),
			zap.String("method", name),
			zap.Int("offset", list.Offset(duplicate)))
		if err := list.DeleteRetarget(duplicate, retained); err != nil {
			return Result{}, errors.WithPath(err, className, name)
		}
		removed++
	}
	if removed == 0 {
		return unchanged, nil
	}

	rewritten, err := list.Finalize()
	if err != nil {
		return Result{}, errors.WithPath(err, className, name)
	}
	out, err := m.WithCode(pool, rewritten)
	if err != nil {
		return Result{}, errors.WithPath(err, className, name)
	}

	Logger().Debug("method rewritten",
		zap.String("class", className),
		zap.String("method", name),
		zap.Int("removed", removed),
		zap.Int("code_length", len(rewritten.Bytecode)))
	return Result{
		Method:  out,
		Before:  code.Bytecode,
		After:   rewritten.Bytecode,
		Removed: removed,
		Changed: true,
	}, nil
}
