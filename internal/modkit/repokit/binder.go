package repokit

// Binder builds a repo bound to one Queryer, so ledger operations that must
// share a transaction get rebound per Tx instead of holding a pool handle
type Binder[T any] interface {
	Bind(Queryer) T
}

// BindFunc adapts a plain constructor function into a Binder
type BindFunc[T any] func(Queryer) T

// Bind calls the underlying function
func (f BindFunc[T]) Bind(q Queryer) T { return f(q) }

// RequireQueryer panics early on programmer error (nil q)
func RequireQueryer(q Queryer) Queryer {
	if q == nil {
		panic("repokit: nil Queryer")
	}
	return q
}

// MustBind validates q then binds
func MustBind[T any](b Binder[T], q Queryer) T {
	return b.Bind(RequireQueryer(q))
}
