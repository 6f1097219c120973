package try

// Fataler has method `Fatal`, like *testing.T or *log.Logger.
type Fataler interface {
	Fatal(...any)
}

// Either wraps a pair of (T, error).
//
// When error is nil, the Either is "ok" and T is valid. Otherwise, T is not valid.
type Either[T any] interface {
	// Get returns (value, nil) or (zero-value, error).
	Get() (T, error)

	// OrFatal returns the value when ok, or calls ftl.Fatal(err).
	//
	// When ftl has `Helper()` (like *testing.T), it is called before `Fatal`.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value when ok, or d.
	OrDefault(d T) T
}

// To wraps a result of function call.
//
//	cfg := try.To(configs.Load(path)).OrFatal(logger)
func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

type tryOk[T any] struct {
	value T
}

type tryNg[T any] struct {
	err error
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(ng.err)

	return *new(T)
}

// Either2 wraps a triple of (T, U, error).
type Either2[T any, U any] interface {
	Get() (T, U, error)

	// OrFatal returns the values when ok, or calls ftl.Fatal(err).
	OrFatal(ftl Fataler) (T, U)
}

// To2 is To for functions returning two values and error.
//
//	rec, tok := try.To2(store.Read(ctx, key)).OrFatal(t)
func To2[T any, U any](t T, u U, err error) Either2[T, U] {
	return either2[T, U]{t: t, u: u, err: err}
}

type either2[T any, U any] struct {
	t   T
	u   U
	err error
}

func (e either2[T, U]) Get() (T, U, error) {
	if e.err != nil {
		return *new(T), *new(U), e.err
	}
	return e.t, e.u, nil
}

func (e either2[T, U]) OrFatal(ftl Fataler) (T, U) {
	if e.err == nil {
		return e.t, e.u
	}
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(e.err)
	return *new(T), *new(U)
}
