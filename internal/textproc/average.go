// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package textproc

import "fmt"

// Average computes the element-wise mean of a set of same-length dense
// vectors, used to fold a document's coarse sub-chunk embeddings back
// into a single split-average embedding for the chunk as a whole.
func Average(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("textproc.Average: no vectors supplied")
	}

	arity := len(vectors[0])
	if arity == 0 {
		return nil, fmt.Errorf("textproc.Average: vectors have zero length")
	}

	sum := make([]float64, arity)
	for _, v := range vectors {
		if len(v) != arity {
			return nil, fmt.Errorf("textproc.Average: mismatched arities %d and %d", arity, len(v))
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	out := make([]float32, arity)
	n := float64(len(vectors))
	for i, x := range sum {
		out[i] = float32(x / n)
	}
	return out, nil
}
