// Package pipeline 定义声明式的多步骤设备操作及其执行器。
package pipeline

import (
	"sort"

	"github.com/pkg/errors"
)

// ErrPipelineNotFound 未注册的 pipeline。
var ErrPipelineNotFound = errors.New("pipeline not found")

// Pipeline 是一组有序步骤及静态要求，注册后不再修改。
type Pipeline struct {
	ID                  string
	Description         string
	RequiresDebugBridge bool
	RequiresBootloader  bool
	Destructive         bool
	Steps               []Step
}

// Descriptor 是 pipeline 的列表视图。
type Descriptor struct {
	ID                  string   `json:"id"`
	Description         string   `json:"description"`
	RequiresDebugBridge bool     `json:"requires_debug_bridge"`
	RequiresBootloader  bool     `json:"requires_bootloader"`
	Destructive         bool     `json:"destructive"`
	Steps               []string `json:"steps"`
}

// Descriptor 生成列表视图。
func (p Pipeline) Descriptor() Descriptor {
	steps := make([]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		steps = append(steps, s.Kind()+": "+s.Describe())
	}
	return Descriptor{
		ID:                  p.ID,
		Description:         p.Description,
		RequiresDebugBridge: p.RequiresDebugBridge,
		RequiresBootloader:  p.RequiresBootloader,
		Destructive:         p.Destructive,
		Steps:               steps,
	}
}

// Validate 校验所有步骤。
func (p Pipeline) Validate() error {
	for i, s := range p.Steps {
		if s == nil {
			return &StepError{Index: i, Description: "<nil>", Err: errors.Wrap(ErrInvalidStep, "nil step")}
		}
		if err := s.Validate(); err != nil {
			return &StepError{Index: i, Description: s.Describe(), Err: err}
		}
	}
	return nil
}

func (p Pipeline) clone() Pipeline {
	p.Steps = append([]Step(nil), p.Steps...)
	return p
}

// Registry 按 ID 保存不可变的 pipeline。
type Registry struct {
	byID map[string]Pipeline
	ids  []string
}

// NewRegistry 注册 pipelines；ID 为空或重复时报错。
func NewRegistry(pipelines ...Pipeline) (*Registry, error) {
	r := &Registry{byID: make(map[string]Pipeline, len(pipelines))}
	for _, p := range pipelines {
		if p.ID == "" {
			return nil, errors.New("pipeline id is empty")
		}
		if _, dup := r.byID[p.ID]; dup {
			return nil, errors.Errorf("duplicate pipeline id %s", p.ID)
		}
		r.byID[p.ID] = p.clone()
		r.ids = append(r.ids, p.ID)
	}
	sort.Strings(r.ids)
	return r, nil
}

// Get 返回 pipeline 的副本。
func (r *Registry) Get(id string) (Pipeline, error) {
	p, ok := r.byID[id]
	if !ok {
		return Pipeline{}, errors.Wrapf(ErrPipelineNotFound, "id %q", id)
	}
	return p.clone(), nil
}

// List 按 ID 排序返回所有 pipeline 的描述。
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.ids))
	for _, id := range r.ids {
		out = append(out, r.byID[id].Descriptor())
	}
	return out
}
