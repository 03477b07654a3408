// Package core implements the navigation and caching engine over a tree of
// Collections and Datasets supplied by a Source.
//
// A Cursor starts at the root Collection and keeps the path from the root to
// its current item. Children, dimensions, allowed values and rows are pulled
// from the Source the first time they are needed and memoized for the
// lifetime of the owning node:
//
//	root ─┬─ Collection ─┬─ Dataset
//	      │              └─ Dataset
//	      └─ Dataset
//
// Dataset.Fetch and Dataset.Dimensions are not side-effect free: both move
// the cursor onto the dataset (Cursor.Focus) before asking the Source,
// because sources may depend on the current position.
//
// A Cursor is not safe for concurrent navigation.
package core
