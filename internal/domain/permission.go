package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownEntity = errors.New("unknown entity")
	ErrUnknownAction = errors.New("unknown action")
)

// Entity 受保护的资源类别（固定闭集）
type Entity string

const (
	EntityEvent         Entity = "event"
	EntityMember        Entity = "member"
	EntityUser          Entity = "user"
	EntityGallery       Entity = "gallery"
	EntityFinance       Entity = "finance"
	EntityAdvertisement Entity = "advertisement"
)

var entities = []Entity{
	EntityEvent,
	EntityMember,
	EntityUser,
	EntityGallery,
	EntityFinance,
	EntityAdvertisement,
}

// Entities 返回所有已知 Entity（固定顺序，Diff/导出都按这个顺序迭代）
func Entities() []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	return out
}

// ParseEntity 解析 entity 名称（大小写不敏感）
func ParseEntity(s string) (Entity, error) {
	e := Entity(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownEntity, s)
	}
	return e, nil
}

func (e Entity) Valid() bool {
	for _, k := range entities {
		if k == e {
			return true
		}
	}
	return false
}

// Action 权限操作（view/create/update/delete）
type Action string

const (
	ActionView   Action = "view"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var actions = []Action{ActionView, ActionCreate, ActionUpdate, ActionDelete}

// Actions 返回所有 Action（固定顺序）
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// ParseAction 解析 action 名称，也接受存储代码（R/C/U/D）
func ParseAction(s string) (Action, error) {
	v := strings.TrimSpace(s)
	if a, ok := ActionFromCode(v); ok {
		return a, nil
	}
	a := Action(strings.ToLower(v))
	if !a.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
	return a, nil
}

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Code 返回存储用的单字母代码（与 permission_type 列一致：R, C, U, D）
func (a Action) Code() string {
	switch a {
	case ActionView:
		return "R"
	case ActionCreate:
		return "C"
	case ActionUpdate:
		return "U"
	case ActionDelete:
		return "D"
	}
	return ""
}

// ActionFromCode 将 R/C/U/D 转换回 Action
func ActionFromCode(code string) (Action, bool) {
	switch code {
	case "R":
		return ActionView, true
	case "C":
		return ActionCreate, true
	case "U":
		return ActionUpdate, true
	case "D":
		return ActionDelete, true
	}
	return "", false
}

// Row 单个 entity 的四个权限位
type Row struct {
	View   bool
	Create bool
	Update bool
	Delete bool
}

func (r Row) Get(a Action) bool {
	switch a {
	case ActionView:
		return r.View
	case ActionCreate:
		return r.Create
	case ActionUpdate:
		return r.Update
	case ActionDelete:
		return r.Delete
	}
	return false
}

func (r *Row) Set(a Action, v bool) {
	switch a {
	case ActionView:
		r.View = v
	case ActionCreate:
		r.Create = v
	case ActionUpdate:
		r.Update = v
	case ActionDelete:
		r.Delete = v
	}
}

// Matrix 权限矩阵：每个已知 Entity 恰好一行
// Row 是值类型，所以 Clone 只需要复制 map
type Matrix map[Entity]Row

// NewMatrix 创建全 false 的完整矩阵
func NewMatrix() Matrix {
	m := make(Matrix, len(entities))
	for _, e := range entities {
		m[e] = Row{}
	}
	return m
}

// Clone 深拷贝，缺失的行补齐为全 false
func (m Matrix) Clone() Matrix {
	out := NewMatrix()
	for e, r := range m {
		out[e] = r
	}
	return out
}

func (m Matrix) Get(e Entity, a Action) bool {
	return m[e].Get(a)
}

func (m Matrix) Set(e Entity, a Action, v bool) {
	r := m[e]
	r.Set(a, v)
	m[e] = r
}

// Equal 比较所有已知 entity 的权限位（缺失行视为全 false）
func (m Matrix) Equal(other Matrix) bool {
	for _, e := range entities {
		if m[e] != other[e] {
			return false
		}
	}
	return true
}

// PermissionRecord 权限数组中的一项（GET /user/{id} 的 permissions 字段）
type PermissionRecord struct {
	Entity string `json:"entity"`
	View   bool   `json:"view"`
	Create bool   `json:"create"`
	Update bool   `json:"update"`
	Delete bool   `json:"delete"`
}

// MatrixFromRecords 将原始 permissions 数组展开为完整矩阵
// 返回被忽略的未知 entity 名称（调用方负责记录日志）
func MatrixFromRecords(records []PermissionRecord) (Matrix, []string) {
	m := NewMatrix()
	var ignored []string
	for _, rec := range records {
		e, err := ParseEntity(rec.Entity)
		if err != nil {
			ignored = append(ignored, rec.Entity)
			continue
		}
		m[e] = Row{View: rec.View, Create: rec.Create, Update: rec.Update, Delete: rec.Delete}
	}
	return m, ignored
}

// Records 矩阵转回 permissions 数组（固定 entity 顺序）
func (m Matrix) Records() []PermissionRecord {
	out := make([]PermissionRecord, 0, len(entities))
	for _, e := range entities {
		r := m[e]
		out = append(out, PermissionRecord{
			Entity: string(e),
			View:   r.View,
			Create: r.Create,
			Update: r.Update,
			Delete: r.Delete,
		})
	}
	return out
}

// CellChange 单个权限位的变更
type CellChange struct {
	Entity Entity `json:"entity"`
	Action Action `json:"action"`
	Value  bool   `json:"value"`
}

func (c CellChange) String() string {
	return fmt.Sprintf("%s.%s=%t", c.Entity, c.Action, c.Value)
}

// SubjectKind 被编辑对象类型
type SubjectKind string

const (
	SubjectUser SubjectKind = "user"
	SubjectRole SubjectKind = "role"
)

// Subject 正在编辑权限的用户或角色
type Subject struct {
	ID   string
	Kind SubjectKind
}

func (s Subject) String() string {
	if s.Kind == "" {
		return s.ID
	}
	return string(s.Kind) + ":" + s.ID
}

// SubjectView GET /user/{id} 返回的对象，permissions 字段为原始权限数组
type SubjectView struct {
	ID          string             `json:"id"`
	Name        string             `json:"name,omitempty"`
	Kind        SubjectKind        `json:"kind,omitempty"`
	Permissions []PermissionRecord `json:"permissions"`
}
