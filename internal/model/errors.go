package model

import "errors"

var (
	// ErrExtraction marks a batch-level failure to fetch transactions from the chain.
	ErrExtraction = errors.New("extraction error")
	// ErrAggregation marks a single wallet whose trades could not be reduced.
	ErrAggregation = errors.New("aggregation error")
	// ErrData marks invalid aggregation input, such as an empty trade set.
	ErrData = errors.New("data error")
	// ErrStore marks a failed read or write against a backing store.
	ErrStore = errors.New("store error")
	// ErrSerialization marks a payload that could not be encoded or decoded.
	ErrSerialization = errors.New("serialization error")
	// ErrNotFound marks a lookup with no stored result.
	ErrNotFound = errors.New("not found")
)
