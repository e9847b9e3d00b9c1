package model

// getPath walks root along path and returns the value found there.
func getPath(root map[string]interface{}, path Path) (interface{}, bool) {
	var node interface{} = root
	for _, seg := range path {
		switch seg.Kind {
		case PathKey:
			m, ok := node.(map[string]interface{})
			if !ok {
				return nil, false
			}
			node, ok = m[seg.Key]
			if !ok {
				return nil, false
			}
		case PathArrayIndex:
			m, ok := node.(map[string]interface{})
			if !ok {
				return nil, false
			}
			arr, ok := m[seg.ArrayName].([]interface{})
			if !ok || seg.Index < 0 || seg.Index >= len(arr) {
				return nil, false
			}
			node = arr[seg.Index]
		}
	}
	return node, true
}

// setScalarPath materializes intermediate maps/array slots along path
// and writes value at its end, for Property and ObjectCollection
// changes. A nil value deletes the targeted key.
func setScalarPath(root map[string]interface{}, path Path, value interface{}) {
	if len(path) == 0 {
		return
	}
	node := root
	for i, seg := range path {
		last := i == len(path)-1
		switch seg.Kind {
		case PathKey:
			if last {
				if value == nil {
					delete(node, seg.Key)
				} else {
					node[seg.Key] = value
				}
				return
			}
			child, ok := node[seg.Key].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				node[seg.Key] = child
			}
			node = child
		case PathArrayIndex:
			arr := resizeList(asList(node[seg.ArrayName]), seg.ListSize)
			node[seg.ArrayName] = arr
			if seg.Index < 0 || seg.Index >= len(arr) {
				return
			}
			if last {
				arr[seg.Index] = value
				return
			}
			child, ok := arr[seg.Index].(map[string]interface{})
			if !ok {
				child = map[string]interface{}{}
				arr[seg.Index] = child
			}
			node = child
		}
	}
}

// appendGrowingPath appends items to the list at path, materializing
// it as an empty list first if absent. A nil items slice clears the
// list, per the GrowingCollection "null means clear" rule.
func appendGrowingPath(root map[string]interface{}, path Path, items []interface{}) {
	node, parentKey := navigateToParent(root, path)
	if node == nil {
		return
	}
	if items == nil {
		node[parentKey] = []interface{}{}
		return
	}
	node[parentKey] = append(asList(node[parentKey]), items...)
}

// navigateToParent materializes every segment of path except the
// last and returns the containing map plus the final key, so the
// caller can read/replace the terminal value directly.
func navigateToParent(root map[string]interface{}, path Path) (map[string]interface{}, string) {
	if len(path) == 0 {
		return nil, ""
	}
	node := root
	for i, seg := range path {
		last := i == len(path)-1
		if seg.Kind != PathKey {
			return nil, ""
		}
		if last {
			return node, seg.Key
		}
		child, ok := node[seg.Key].(map[string]interface{})
		if !ok {
			child = map[string]interface{}{}
			node[seg.Key] = child
		}
		node = child
	}
	return nil, ""
}

func asList(v interface{}) []interface{} {
	l, _ := v.([]interface{})
	return l
}

// resizeList truncates or pads arr with nils to exactly size entries.
func resizeList(arr []interface{}, size int) []interface{} {
	if size < 0 {
		return arr
	}
	if size <= len(arr) {
		return arr[:size]
	}
	for len(arr) < size {
		arr = append(arr, nil)
	}
	return arr
}
