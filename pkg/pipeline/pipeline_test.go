package pipeline

import (
	"testing"

	"github.com/httprunner/FlashAgent/internal/agent/gate"
	"github.com/pkg/errors"
)

func TestBuiltinRegistry(t *testing.T) {
	r := Builtin()
	list := r.List()
	if len(list) != len(BuiltinPipelines()) {
		t.Fatalf("expected %d pipelines, got %d", len(BuiltinPipelines()), len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Fatalf("list not sorted: %s >= %s", list[i-1].ID, list[i].ID)
		}
	}
	for _, p := range BuiltinPipelines() {
		if err := p.Validate(); err != nil {
			t.Fatalf("builtin %s invalid: %v", p.ID, err)
		}
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrPipelineNotFound) {
		t.Fatalf("expected ErrPipelineNotFound, got %v", err)
	}
}

func TestRegistryReturnsCopies(t *testing.T) {
	r := Builtin()
	p, _ := r.Get("reboot-chain")
	p.Steps[0] = Annotate{Text: "mutated"}
	again, _ := r.Get("reboot-chain")
	if again.Steps[0].Describe() == "mutated" {
		t.Fatalf("registry pipeline was mutated through Get")
	}
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	p := Pipeline{ID: "x", Steps: []Step{Annotate{Text: "a"}}}
	if _, err := NewRegistry(p, p); err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if _, err := NewRegistry(Pipeline{}); err == nil {
		t.Fatalf("expected empty id error")
	}
}

func TestStepValidate(t *testing.T) {
	cases := []struct {
		step Step
		ok   bool
	}{
		{ShellCommand{Transport: gate.TransportDebugBridge, Args: []string{"reboot"}}, true},
		{ShellCommand{Transport: gate.TransportFlash, Args: []string{"boot"}}, false},
		{ShellCommand{Transport: gate.TransportBootloader}, false},
		{FlashCommand{Partition: "boot", Image: "boot.img"}, true},
		{FlashCommand{Partition: "boot"}, false},
		{Annotate{}, true},
	}
	for _, c := range cases {
		err := c.step.Validate()
		if c.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", c.step.Describe(), err)
		}
		if !c.ok && !errors.Is(err, ErrInvalidStep) {
			t.Fatalf("%s: expected ErrInvalidStep, got %v", c.step.Describe(), err)
		}
	}
}
