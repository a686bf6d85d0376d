package canonical

// Strategy is one step of an ordered extraction chain. Extract reports
// whether it produced a value.
type Strategy[S, T any] struct {
	Source  ExtractionSource
	Extract func(S) (T, bool)
}

// FirstOf runs chain in order and returns the first value produced along
// with the step that produced it. A step that panics counts as producing
// nothing. If no step succeeds it returns the zero T and SourceNone.
func FirstOf[S, T any](src S, chain ...Strategy[S, T]) (T, ExtractionSource) {
	for _, step := range chain {
		if v, ok := tryExtract(src, step.Extract); ok {
			return v, step.Source
		}
	}
	var zero T
	return zero, SourceNone
}

func tryExtract[S, T any](src S, fn func(S) (T, bool)) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, ok = zero, false
		}
	}()
	return fn(src)
}
