package duel

import "duelserver/models"

// queues は希望モードごとの待機列です。1接続は1つの列にだけ並びます。
type queues struct {
	lists map[models.Mode][]ConnID
}

func newQueues() *queues {
	return &queues{lists: map[models.Mode][]ConnID{
		models.ModeInternational: nil,
		models.ModeClub:          nil,
		models.ModeAll:           nil,
	}}
}

// add は末尾に追加します。既に同じ列にいれば何もしません。
func (q *queues) add(pref models.Mode, conn ConnID) bool {
	for _, c := range q.lists[pref] {
		if c == conn {
			return false
		}
	}
	q.lists[pref] = append(q.lists[pref], conn)
	return true
}

// preferenceOf は conn が並んでいる列を返します。
func (q *queues) preferenceOf(conn ConnID) (models.Mode, bool) {
	for pref, list := range q.lists {
		for _, c := range list {
			if c == conn {
				return pref, true
			}
		}
	}
	return "", false
}

// remove は全ての列から conn を取り除きます。
func (q *queues) remove(conn ConnID) bool {
	return q.removeWhere(func(c ConnID) bool { return c == conn }) > 0
}

func (q *queues) removeWhere(match func(ConnID) bool) int {
	removed := 0
	for pref, list := range q.lists {
		kept := list[:0]
		for _, c := range list {
			if match(c) {
				removed++
				continue
			}
			kept = append(kept, c)
		}
		q.lists[pref] = kept
	}
	return removed
}

func (q *queues) len(pref models.Mode) int {
	return len(q.lists[pref])
}

func (q *queues) pop(pref models.Mode) ConnID {
	list := q.lists[pref]
	head := list[0]
	q.lists[pref] = list[1:]
	return head
}

func (q *queues) pushFront(pref models.Mode, conn ConnID) {
	q.lists[pref] = append([]ConnID{conn}, q.lists[pref]...)
}

// canPair は a と b の列から1人ずつ取り出せるかを返します。
func (q *queues) canPair(a, b models.Mode) bool {
	if a == b {
		return q.len(a) >= 2
	}
	return q.len(a) >= 1 && q.len(b) >= 1
}

func (q *queues) sizes() map[string]int {
	out := make(map[string]int, len(q.lists))
	for pref, list := range q.lists {
		out[string(pref)] = len(list)
	}
	return out
}
