package rewrite

import (
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/slarse/duplicate-checkcast-remover/classfile"
)

// MethodReport describes one rewritten method.
type MethodReport struct {
	Name       string
	Descriptor string
	Before     []byte
	After      []byte
	Index      int
	Removed    int
}

// Report summarizes the rewrite of one class.
type Report struct {
	Pool    *classfile.ConstantPool
	Class   string // dotted name
	Methods []MethodReport
}

// Removed returns the total number of removed instructions.
func (r *Report) Removed() int {
	n := 0
	for _, m := range r.Methods {
		n += m.Removed
	}
	return n
}

// Changed reports whether any method was rewritten.
func (r *Report) Changed() bool {
	return len(r.Methods) > 0
}

// Qualified returns the method name in Class#method form.
func (r *Report) Qualified(m MethodReport) string {
	return r.Class + "#" + m.Name
}

// Lines returns one human-readable line per rewritten method.
func (r *Report) Lines() []string {
	out := make([]string, len(r.Methods))
	for i, m := range r.Methods {
		out[i] = fmt.Sprintf("Removed %d duplicated CHECKCAST instructions from %s", m.Removed, r.Qualified(m))
	}
	return out
}

type options struct {
	workers int
}

// Option configures a class rewrite.
type Option func(*options)

// WithWorkers sets how many methods are rewritten concurrently. Zero or a
// negative value uses GOMAXPROCS. The default is one.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n <= 0 {
			n = runtime.GOMAXPROCS(0)
		}
		o.workers = n
	}
}

func defaultOptions() options {
	return options{workers: 1}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Class rewrites every method of cls that has a body. Rewritten methods
// replace their originals in cls.Methods; the constant pool is left as is.
// If any method fails, cls is not modified.
func Class(cls *classfile.Class, opts ...Option) (*Report, error) {
	o := newOptions(opts)
	className := cls.DottedName()

	results := make([]Result, len(cls.Methods))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i := range cls.Methods {
		m := &cls.Methods[i]
		if !m.HasBody() {
			continue
		}
		g.Go(func() error {
			r, err := Method(m, cls.Pool, className)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Pool: cls.Pool, Class: className}
	for i, r := range results {
		if !r.Changed {
			continue
		}
		cls.Methods[i] = r.Method
		report.Methods = append(report.Methods, MethodReport{
			Name:       r.Method.Name(cls.Pool),
			Descriptor: r.Method.Descriptor(cls.Pool),
			Before:     r.Before,
			After:      r.After,
			Index:      i,
			Removed:    r.Removed,
		})
	}

	Logger().Debug("class rewritten",
		zap.String("class", className),
		zap.Int("methods", len(cls.Methods)),
		zap.Int("rewritten", len(report.Methods)),
		zap.Int("removed", report.Removed()),
		zap.Int("workers", o.workers))
	return report, nil
}
