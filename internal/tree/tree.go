// Package tree はコレクション階層の組み立てと走査を提供する。
// ストアから取得したフラットな親ポインタ形式の行を、メモリ上で
// 祖先チェーン・深さ・未読集計付きの順序付きフォレストに変換する。
package tree

import (
	"sort"

	"github.com/hitoshi/feedtree/internal/model"
	"github.com/hitoshi/feedtree/internal/repository"
)

// Node はツリー表示用に拡張されたコレクション。
type Node struct {
	model.Collection
	// Ancestors はルートから親までの祖先IDの列。ルートノードでは空。
	Ancestors []string
	// Depth はルートを0とする深さ。
	Depth int
	// UnreadCount は自身と全子孫の未読記事数の合計。記事がない場合は0。
	UnreadCount int
}

// Build はフラットな行の集合から順序付きフォレストを組み立てる。
// 走査順は幅優先（深さ昇順、同一深さ内ではorder昇順、同orderはID昇順）。
// 変更操作はサイクルを作らない前提だが、防御として自身のIDが
// 祖先チェーンに再出現した枝は展開を打ち切る。
func Build(rows []repository.CollectionRow) []Node {
	byID := make(map[string]repository.CollectionRow, len(rows))
	children := make(map[string][]string) // parent id ("" = ルート) -> 子ID列
	for _, row := range rows {
		byID[row.ID] = row
		children[parentKey(row.ParentID)] = append(children[parentKey(row.ParentID)], row.ID)
	}

	var result []Node
	visited := make(map[string]bool, len(rows))

	// 深さごとに処理する。ノードの深さは祖先チェーンの長さから導出される。
	level := expandLevel(nil, children[""], byID, visited)
	for len(level) > 0 {
		sortLevel(level)
		result = append(result, level...)

		var next []Node
		for i := range level {
			n := level[i]
			chain := append(append([]string{}, n.Ancestors...), n.ID)
			next = append(next, expandLevel(chain, children[n.ID], byID, visited)...)
		}
		level = next
	}

	aggregateUnread(result)

	return result
}

// DescendantIDs は指定ノード自身を含む子孫ID集合を返す。
// rootIDが行に存在しない場合はnilを返す。
func DescendantIDs(rows []repository.CollectionRow, rootID string) []string {
	found := false
	children := make(map[string][]string)
	for _, row := range rows {
		if row.ID == rootID {
			found = true
		}
		children[parentKey(row.ParentID)] = append(children[parentKey(row.ParentID)], row.ID)
	}
	if !found {
		return nil
	}

	visited := map[string]bool{rootID: true}
	ids := []string{rootID}
	for i := 0; i < len(ids); i++ {
		for _, childID := range children[ids[i]] {
			if visited[childID] {
				// サイクル防御
				continue
			}
			visited[childID] = true
			ids = append(ids, childID)
		}
	}

	return ids
}

// expandLevel は子ID列をNodeに展開する。サイクル防御として訪問済みノードは展開しない。
func expandLevel(ancestors []string, childIDs []string, byID map[string]repository.CollectionRow, visited map[string]bool) []Node {
	var nodes []Node
	for _, id := range childIDs {
		if visited[id] {
			continue
		}
		if containsID(ancestors, id) {
			continue
		}
		visited[id] = true

		row := byID[id]
		nodes = append(nodes, Node{
			Collection:  row.Collection,
			Ancestors:   ancestors,
			Depth:       len(ancestors),
			UnreadCount: row.UnreadCount,
		})
	}
	return nodes
}

// sortLevel は同一深さのノードをorder昇順（同orderはID昇順）に整列する。
func sortLevel(level []Node) {
	sort.SliceStable(level, func(i, j int) bool {
		if level[i].Order != level[j].Order {
			return level[i].Order < level[j].Order
		}
		return level[i].ID < level[j].ID
	})
}

// aggregateUnread は各ノードの未読数に子孫分を合算する。
// nodesは幅優先順（親が必ず先）なので、末尾から祖先チェーンに積み上げる。
func aggregateUnread(nodes []Node) {
	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}

	for i := len(nodes) - 1; i >= 0; i-- {
		n := nodes[i]
		if len(n.Ancestors) == 0 {
			continue
		}
		parentID := n.Ancestors[len(n.Ancestors)-1]
		if pi, ok := index[parentID]; ok {
			nodes[pi].UnreadCount += n.UnreadCount
		}
	}
}

func parentKey(parentID *string) string {
	if parentID == nil {
		return ""
	}
	return *parentID
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
