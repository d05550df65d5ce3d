// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package ingest

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// groupTagSetFor looks up the deduplicated union of groupIDs' tag sets.
// Returns nil when groupIDs is empty: a chunk with no group memberships
// carries no group-derived tags.
//
// cache is keyed by the sorted group-id set so a bulk batch that shares
// group memberships across many chunks doesn't repeat the same lookup.
func groupTagSetFor(ctx context.Context, deps Deps, groupIDs []uuid.UUID, cache map[string][]*string) ([]*string, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}

	key := cacheKey(groupIDs)
	if tagSet, ok := cache[key]; ok {
		return tagSet, nil
	}

	tagSet, err := deps.Store.GroupTagSetUnion(ctx, groupIDs)
	if err != nil {
		return nil, err
	}
	cache[key] = tagSet
	return tagSet, nil
}

func cacheKey(groupIDs []uuid.UUID) string {
	strs := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		strs[i] = id.String()
	}
	sort.Strings(strs)
	return strings.Join(strs, ",")
}
