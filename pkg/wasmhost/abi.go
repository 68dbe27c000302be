package wasmhost

// Guest ABI names. Import modules are versioned WIT-style worlds; the
// entry point and event callback are exports named with their interface
// path.
const (
	ModuleBase     = "rudel:base/base@0.0.1"
	ModuleHardware = "rudel:base/hardware@0.0.1"
	ModuleBLE      = "rudel:base/ble@0.0.1"

	ExportRun     = "rudel:base/run@0.0.1#run"
	ExportOnEvent = "rudel:base/ble@0.0.1#on-event"
	ExportMemory  = "memory"
	ExportRealloc = "cabi_realloc"
)

// Host ABI version reported through get-base-version.
const (
	BaseVersionMajor = 0
	BaseVersionMinor = 0
	BaseVersionPatch = 1
	BaseVersionTag   = 0
)
