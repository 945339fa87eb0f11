package pipeline

import "github.com/httprunner/FlashAgent/internal/agent/gate"

// BuiltinPipelines 返回内置 pipeline 定义。
func BuiltinPipelines() []Pipeline {
	return []Pipeline{
		{
			ID:                  "reboot-chain",
			Description:         "ADB -> bootloader -> fastboot verification",
			RequiresDebugBridge: true,
			RequiresBootloader:  true,
			Steps: []Step{
				Annotate{Text: "Rebooting to bootloader"},
				ShellCommand{Transport: gate.TransportDebugBridge, Args: []string{"reboot", "bootloader"}},
				Annotate{Text: "Waiting for fastboot"},
			},
		},
		{
			ID:                 "flash-boot-dry-run",
			Description:        "Dry-run boot partition flash (no write)",
			RequiresBootloader: true,
			Steps: []Step{
				ShellCommand{Transport: gate.TransportBootloader, Args: []string{"getvar", "all"}},
			},
		},
		{
			ID:                 "bootloader-info",
			Description:        "Read slot and lock state from the bootloader",
			RequiresBootloader: true,
			Steps: []Step{
				Annotate{Text: "Querying bootloader variables"},
				ShellCommand{Transport: gate.TransportBootloader, Args: []string{"getvar", "current-slot"}},
				ShellCommand{Transport: gate.TransportBootloader, Args: []string{"getvar", "unlocked"}},
			},
		},
		{
			ID:                 "reboot-system",
			Description:        "Leave fastboot and boot the OS",
			RequiresBootloader: true,
			Steps: []Step{
				Annotate{Text: "Rebooting to system"},
				ShellCommand{Transport: gate.TransportBootloader, Args: []string{"reboot"}},
			},
		},
	}
}

// Builtin 返回只包含内置 pipeline 的 Registry。
func Builtin() *Registry {
	r, err := NewRegistry(BuiltinPipelines()...)
	if err != nil {
		panic(err)
	}
	return r
}
