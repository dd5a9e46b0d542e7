package util

// Back is the last element of data. It panics on an empty slice.
func Back[T any](data []T) T {
	if len(data) == 0 {
		panic("empty slice")
	}
	return data[len(data)-1]
}

func Empty[T any](data []T) bool {
	return len(data) == 0
}

// FindIf is the index of the first element satisfying pred or -1.
func FindIf[T any](data []T, pred func(t T) bool) int {
	for i, ele := range data {
		if pred(ele) {
			return i
		}
	}
	return -1
}
