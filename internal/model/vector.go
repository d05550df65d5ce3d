// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

import "fmt"

// SupportedArities are the dense vector sizes the vector gateway accepts.
// A dense vector of any other length signals a misconfigured dataset.
var SupportedArities = map[int]bool{
	384: true, 512: true, 768: true, 1024: true, 1536: true, 3072: true,
}

// VectorFieldForArity returns the Qdrant collection and dense field name
// for a dense vector of the given length, or "" if the arity is
// unsupported.
func VectorFieldForArity(arity int) string {
	if !SupportedArities[arity] {
		return ""
	}
	return fmt.Sprintf("%d_vectors", arity)
}

// SparseFieldName is the fixed field name every collection uses for its
// sparse lexical vector.
const SparseFieldName = "sparse_vectors"

// SparseTerm is one (token id, weight) pair of a sparse lexical vector.
type SparseTerm struct {
	TokenID uint32
	Weight  float32
}

// SparseStub is substituted for a chunk's sparse vector when full-text
// search is disabled for the dataset.
func SparseStub() []SparseTerm {
	return []SparseTerm{{TokenID: 0, Weight: 0}}
}
