package permission

import "family-admin/internal/domain"

// Diff 计算 baseline 与 working 之间变化的单元格
// 迭代顺序：entity 固定顺序，然后 action 固定顺序
// working 中存在而 baseline 缺失的行按全 false 比较
func Diff(baseline, working domain.Matrix) []domain.CellChange {
	var changes []domain.CellChange
	for _, e := range domain.Entities() {
		b, w := baseline[e], working[e]
		if b == w {
			continue
		}
		for _, a := range domain.Actions() {
			if v := w.Get(a); v != b.Get(a) {
				changes = append(changes, domain.CellChange{Entity: e, Action: a, Value: v})
			}
		}
	}
	return changes
}

// HasChanges 是否存在未保存的变更
func HasChanges(baseline, working domain.Matrix) bool {
	return len(Diff(baseline, working)) > 0
}

// ApplyTo 把变更逐个覆盖到 m 的副本上，m 本身不变
func ApplyTo(m domain.Matrix, changes []domain.CellChange) domain.Matrix {
	out := m.Clone()
	for _, c := range changes {
		out.Set(c.Entity, c.Action, c.Value)
	}
	return out
}
