package model

// OptionType classifies a spring (seasonal/limited) option.
type OptionType string

const (
	OptionTrackUpgrade   OptionType = "track_upgrade"
	OptionColorChange    OptionType = "color_change"
	OptionPerformance    OptionType = "performance"
	OptionComfort        OptionType = "comfort"
	OptionWeatherPackage OptionType = "weather_package"
	OptionStarter        OptionType = "starter"
	OptionSuspension     OptionType = "suspension"
)

// SpringOption is a customization detected from price-list text or specs.
type SpringOption struct {
	Type             OptionType        `json:"option_type"`
	Description      string            `json:"description"`
	TechnicalDetails map[string]string `json:"technical_details,omitempty"`
	Confidence       float64           `json:"confidence"`
	DetectionMethod  string            `json:"detection_method"`
}
