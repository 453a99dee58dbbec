package yarbo

// Category names a telemetry slot of the status snapshot.
type Category string

// Telemetry categories, keyed in the snapshot by these names.
const (
	CategoryBattery       Category = "battery"
	CategoryRunningStatus Category = "running_status"
	CategoryElectricInfo  Category = "electric_info"
	CategoryRTKStatus     Category = "rtk_status"
	CategoryMotorInfo     Category = "motor_info"
	CategoryBodyInfo      Category = "body_info"
	CategoryHubInfo       Category = "hub_info"
	CategoryUltrasonic    Category = "ultrasonic"
	CategoryVelocity      Category = "velocity"
	CategoryNetStatus     Category = "net_status"
	CategoryVisionInfo    Category = "vision_info"
	CategoryMowerHeadInfo Category = "mower_head_info"
	CategoryLEDInfo       Category = "led_info"
	CategoryOdomInfo      Category = "odom_info"
	CategorySystemInfo    Category = "system_info"
)

// Inner data_feedback topics that are not plain telemetry.
const (
	feedbackStateInfo   = "stateInfo"
	feedbackWiFiName    = "get_connect_wifi_name"
	feedbackMap         = "get_map"
	feedbackPlans       = "read_all_plan"
	feedbackGPSRef      = "read_gps_ref"
	feedbackSchedules   = "read_schedules"
	feedbackParams      = "read_global_params"
	feedbackDeviceMsg   = "get_device_msg"
	feedbackPreviewPath = "preview_plan_path"
)

// categoryByFeedback maps the inner topic of a data_feedback message to
// its telemetry slot.
var categoryByFeedback = map[string]Category{
	"batteryInfo":        CategoryBattery,
	"runningStatus":      CategoryRunningStatus,
	"electricInfo":       CategoryElectricInfo,
	"rtkMSG":             CategoryRTKStatus,
	"motorInfo":          CategoryMotorInfo,
	"bodyInfoMSG":        CategoryBodyInfo,
	"hubInfoMsg":         CategoryHubInfo,
	"ultrasonicMsg":      CategoryUltrasonic,
	"velocityShow":       CategoryVelocity,
	"netStatusInfo":      CategoryNetStatus,
	"visionInfo":         CategoryVisionInfo,
	"mowerHeadInfo":      CategoryMowerHeadInfo,
	"ledInfoMsg":         CategoryLEDInfo,
	"odomInfo":           CategoryOdomInfo,
	"SystemInfoFeedback": CategorySystemInfo,
}

// Categories returns every telemetry category.
func Categories() []Category {
	out := make([]Category, 0, len(categoryByFeedback))
	for _, c := range categoryByFeedback {
		out = append(out, c)
	}
	return out
}

// workingStates names the heartbeat and StateMSG working_state codes.
var workingStates = map[int]string{
	0: "standby",
	1: "idle",
	2: "working",
	3: "charging",
	4: "docking",
	5: "error",
	6: "returning",
	7: "paused",
}

// runningStates names the runningStatus state codes.
var runningStates = map[int]string{
	0: "idle",
	1: "working",
	2: "paused",
	3: "charging",
	4: "error",
	5: "docking",
	6: "returning",
}

// WorkingStateName maps a working_state code to its activity name, or
// "unknown".
func WorkingStateName(code any) string {
	if n, ok := toInt(code); ok {
		if name, ok := workingStates[n]; ok {
			return name
		}
	}
	return StateUnknown
}

// runningStateName maps a runningStatus code, or "unknown_<code>".
func runningStateName(code any) string {
	if n, ok := toInt(code); ok {
		if name, ok := runningStates[n]; ok {
			return name
		}
	}
	return "unknown_" + formatCode(code)
}

// StateUnknown is the activity before any state report.
const StateUnknown = "unknown"

// controlCommands are the outbound command names recorded in the command history.
var controlCommands = map[string]bool{
	"cmd_vel":           true,
	"cmd_roller":        true,
	"set_working_state": true,
	"set_plan_roller":   true,
	"start_plan":        true,
	"stop":              true,
	"pause":             true,
	"resume":            true,
	"dock":              true,
	"cmd_recharge":      true,
	"preview_plan_path": true,
}

// IsControlCommand reports whether name is a tracked control command.
func IsControlCommand(name string) bool {
	return controlCommands[name]
}
